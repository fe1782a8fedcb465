package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/backtester/sim"
)

// Result is the full output of one run: the closed trade ledger and the
// per-bar equity curve, plus any margin-call events and margin-rejected
// orders. These are the sole inputs the statistics collaborator needs.
type Result struct {
	RunID    string
	Strategy string
	Bars     int
	Start    time.Time
	End      time.Time

	Trades      []sim.Trade
	EquityCurve []float64
	MarginCalls []sim.MarginCall
	Rejected    []sim.RejectedOrder

	FinalBalance float64
	FinalEquity  float64
}

// Wins counts closed trades with positive P&L.
func (r Result) Wins() int {
	n := 0
	for _, t := range r.Trades {
		if t.PL > 0 {
			n++
		}
	}
	return n
}

// Losses counts closed trades with negative P&L.
func (r Result) Losses() int {
	n := 0
	for _, t := range r.Trades {
		if t.PL < 0 {
			n++
		}
	}
	return n
}

// Print writes a human-readable run summary.
func (r Result) Print(w io.Writer) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Trades:        %d\n", len(r.Trades))
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins())
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses())
	fmt.Fprintf(w, "Margin Calls:  %d\n", len(r.MarginCalls))
	fmt.Fprintf(w, "Rejected:      %d\n", len(r.Rejected))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final Balance: %.2f\n", r.FinalBalance)
	fmt.Fprintf(w, "Final Equity:  %.2f\n", r.FinalEquity)
}
