package market

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Accepted timestamp layouts, tried in order.
var tsLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102 150405",
	"2006-01-02",
}

// LoadCSV reads bars from a CSV file with columns
// time,open,high,low,close[,volume]. The header line is optional. Malformed
// lines are counted and skipped; a warning is printed when any were seen.
// The resulting bars still go through NewSeries validation, so ordering or
// price problems surface as errors, not as silently dropped rows.
func LoadCSV(fname string) (*Series, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var bars []Bar
	var badLines int

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		low := strings.ToLower(line)
		if strings.HasPrefix(low, "time") || strings.HasPrefix(low, "date") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 5 {
			parts = strings.Split(line, ";")
		}
		if len(parts) < 5 {
			badLines++
			continue
		}

		ts, err := parseTime(parts[0])
		if err != nil {
			badLines++
			continue
		}

		vals := make([]float64, 0, 5)
		ok := true
		for _, p := range parts[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				ok = false
				break
			}
			vals = append(vals, v)
			if len(vals) == 5 {
				break
			}
		}
		if !ok || len(vals) < 4 {
			badLines++
			continue
		}

		bar := Bar{
			Time:  ts,
			Open:  vals[0],
			High:  vals[1],
			Low:   vals[2],
			Close: vals[3],
		}
		if len(vals) >= 5 {
			bar.Volume = vals[4]
		}
		bars = append(bars, bar)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}
	if badLines > 0 {
		fmt.Fprintf(os.Stderr, "ingest warnings: badLines=%d in %s\n", badLines, fname)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid bars found in %s", fname)
	}

	return NewSeries(bars)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	// Unix seconds are common in exported kline dumps.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 { // milliseconds
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
