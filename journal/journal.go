// Package journal persists the output of a simulation run: the closed trade
// ledger, the per-bar equity curve, and any margin-call events.
package journal

import "time"

type TradeRecord struct {
	TradeID    string
	RunID      string
	Size       float64
	EntryBar   int
	ExitBar    int
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PL         float64
	Reason     string
	Tag        string
}

type EquitySnapshot struct {
	RunID       string
	Bar         int
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

// MarginCallRecord captures one forced liquidation. Margin calls are events,
// not errors; the run continues after each one.
type MarginCallRecord struct {
	RunID     string
	Bar       int
	Time      time.Time
	TradeID   string
	Size      float64
	Price     float64
	Shortfall float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordMarginCall(MarginCallRecord) error
	Close() error
}

// Nop discards everything. Useful for runs that only need the in-memory
// result, e.g. parameter sweeps.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error           { return nil }
func (Nop) RecordEquity(EquitySnapshot) error       { return nil }
func (Nop) RecordMarginCall(MarginCallRecord) error { return nil }
func (Nop) Close() error                            { return nil }
