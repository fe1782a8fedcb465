// Package analytics computes performance statistics from a finished run. It
// consumes only the closed trade list and the per-bar equity curve, never the
// engine's internal state.
package analytics

import (
	"fmt"
	"io"
	"math"

	"github.com/rustyeddy/backtester/sim"
)

// Metrics summarizes a run.
type Metrics struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	NetProfit    float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	AverageWin   float64
	AverageLoss  float64
	Expectancy   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	MaxDrawdown float64 // fraction of peak equity
	SharpeRatio float64 // per-bar returns, not annualized
	ROI         float64 // net profit over initial cash
	FinalEquity float64
}

// Analyze computes metrics from closed trades and the equity curve.
func Analyze(trades []sim.Trade, equity []float64, initialCash float64) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)

	var curWins, curLosses int
	for _, t := range trades {
		switch {
		case t.PL > 0:
			m.Wins++
			m.GrossProfit += t.PL
			curWins++
			curLosses = 0
		case t.PL < 0:
			m.Losses++
			m.GrossLoss += -t.PL
			curLosses++
			curWins = 0
		default:
			curWins, curLosses = 0, 0
		}
		if curWins > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = curWins
		}
		if curLosses > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = curLosses
		}
		m.NetProfit += t.PL
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
		m.Expectancy = m.NetProfit / float64(m.TotalTrades)
	}
	if m.Wins > 0 {
		m.AverageWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.Losses)
	}
	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}

	m.MaxDrawdown = maxDrawdown(equity)
	m.SharpeRatio = sharpe(equity)

	if initialCash > 0 {
		m.ROI = m.NetProfit / initialCash
	}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1]
	} else {
		m.FinalEquity = initialCash
	}

	return m
}

// maxDrawdown is the deepest peak-to-trough loss as a fraction of the peak.
func maxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe is mean over standard deviation of per-bar equity returns.
func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// Print writes a human-readable metrics block.
func (m Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d (W %d / L %d)\n", m.TotalTrades, m.Wins, m.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Net Profit:    %.2f\n", m.NetProfit)
	if m.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", m.ProfitFactor)
	}
	fmt.Fprintf(w, "Expectancy:    %.2f\n", m.Expectancy)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Sharpe (bar):  %.3f\n", m.SharpeRatio)
	fmt.Fprintf(w, "ROI:           %.2f%%\n", m.ROI*100)
}
