package market

import (
	"fmt"
	"time"
)

// Series is a validated, immutable bar history. Construction is the only
// place bad data can enter a simulation, so all structural checks happen
// here, before any bar processing begins.
type Series struct {
	bars []Bar
}

// NewSeries validates the bars and wraps them. The slice is not copied;
// callers hand over ownership.
func NewSeries(bars []Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("series: no bars")
	}

	var prev time.Time
	for i, b := range bars {
		if i > 0 && !b.Time.After(prev) {
			return nil, fmt.Errorf("series: non-increasing timestamp at bar %d (%s after %s)",
				i, b.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = b.Time

		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, fmt.Errorf("series: non-positive price at bar %d", i)
		}
		if b.High < b.Open || b.High < b.Close || b.High < b.Low {
			return nil, fmt.Errorf("series: high below open/close/low at bar %d", i)
		}
		if b.Low > b.Open || b.Low > b.Close {
			return nil, fmt.Errorf("series: low above open/close at bar %d", i)
		}
	}

	return &Series{bars: bars}, nil
}

func (s *Series) Len() int { return len(s.bars) }

func (s *Series) Bar(idx int) Bar { return s.bars[idx] }

// Bars returns the full backing slice. Callers must treat it as read-only.
func (s *Series) Bars() []Bar { return s.bars }

// Closes extracts the close column, the usual indicator input.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}
