package sim

import (
	"fmt"

	"github.com/rustyeddy/backtester/market"
)

// Clock owns the bar series and the current index. It is the single causal
// boundary of a simulation: during the run phase every read is bounded by the
// current index, so no component can see a bar that has not happened yet.
//
// During the setup phase (before Start) the full series is visible. That is
// deliberate: strategies precompute indicator arrays over the whole history
// at setup time and are responsible for reading them only up to the current
// index afterwards.
type Clock struct {
	series  *market.Series
	idx     int
	running bool
}

func NewClock(series *market.Series) *Clock {
	return &Clock{series: series, idx: -1}
}

// Start ends the setup phase. From here on, views are progressively revealed.
func (c *Clock) Start() {
	c.running = true
	c.idx = -1
}

// Advance moves to the next bar. Returns ErrEndOfData when none remain.
func (c *Clock) Advance() error {
	if c.idx+1 >= c.series.Len() {
		return ErrEndOfData
	}
	c.idx++
	return nil
}

func (c *Clock) Index() int { return c.idx }

func (c *Clock) Len() int { return c.series.Len() }

// Bar returns the current bar. Panics before the first Advance.
func (c *Clock) Bar() market.Bar {
	if c.idx < 0 {
		panic("sim: Bar called before first Advance")
	}
	return c.series.Bar(c.idx)
}

// BarAt returns the bar at idx. Reading past the current index while running
// is a contract violation and panics loudly rather than truncating.
func (c *Clock) BarAt(idx int) market.Bar {
	if c.running && idx > c.idx {
		panic(fmt.Sprintf("sim: lookahead read of bar %d at bar %d", idx, c.idx))
	}
	return c.series.Bar(idx)
}

// View returns the visible bar history: the full series during setup, bars
// [0..current] while running. The returned slice shares the immutable backing
// array; callers must not mutate it.
func (c *Clock) View() []market.Bar {
	if !c.running {
		return c.series.Bars()
	}
	if c.idx < 0 {
		return nil
	}
	return c.series.Bars()[:c.idx+1]
}
