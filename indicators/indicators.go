// Package indicators computes full-series indicator arrays from bar history.
// Arrays are precomputed once at strategy setup time, over the whole series;
// during per-bar logic a strategy reads them only up to the current index.
// Positions before an indicator's warmup hold NaN.
package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// SMA returns the simple moving average of values for the given period.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough values: need %d, got %d", period, len(values))
	}

	out := nanSlice(len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA returns the exponential moving average of values for the given period,
// seeded with the SMA of the first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough values: need %d, got %d", period, len(values))
	}

	out := nanSlice(len(values))
	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += values[i]
	}
	ema := sma / float64(period)
	out[period-1] = ema

	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out, nil
}

// RSI returns the Relative Strength Index of values, Wilder-smoothed.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period+1 {
		return nil, fmt.Errorf("not enough values: need %d, got %d", period+1, len(values))
	}

	out := nanSlice(len(values))

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

// ATR returns the Average True Range over bars, Wilder-smoothed.
func ATR(bars []market.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period+1 {
		return nil, fmt.Errorf("not enough bars: need %d, got %d", period+1, len(bars))
	}

	out := nanSlice(len(bars))

	var sum float64
	atr := 0.0
	for i := 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1])
		if i <= period {
			sum += tr
			if i == period {
				atr = sum / float64(period)
				out[i] = atr
			}
			continue
		}
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}
	return out, nil
}

func trueRange(cur, prev market.Bar) float64 {
	a := cur.High - cur.Low
	b := math.Abs(cur.High - prev.Close)
	c := math.Abs(cur.Low - prev.Close)
	return math.Max(a, math.Max(b, c))
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Crossover reports whether a crossed above b at index i. NaN warmup values
// never signal.
func Crossover(a, b []float64, i int) bool {
	if i < 1 {
		return false
	}
	if math.IsNaN(a[i]) || math.IsNaN(b[i]) || math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) {
		return false
	}
	return a[i-1] <= b[i-1] && a[i] > b[i]
}
