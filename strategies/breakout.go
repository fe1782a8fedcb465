package strategies

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Breakout places a buy stop above the rolling high and a sell stop below the
// rolling low of the last Lookback bars, canceling and re-placing both each
// bar while flat. Whichever side triggers first opens the position; the
// leftover side is withdrawn on the next bar. It exists mainly to exercise
// stop and stop-limit orders end to end.
type Breakout struct {
	cfg BreakoutConfig

	buyID  string
	sellID string
}

type BreakoutConfig struct {
	Lookback int     // channel length, default 20
	RiskPct  float64 // equity fraction per entry, default 0.2
	// LimitOffset widens the stop into a stop-limit: the limit is placed
	// this relative distance beyond the stop. 0 keeps plain stop orders.
	LimitOffset float64
}

func NewBreakout(cfg BreakoutConfig) *Breakout {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 20
	}
	if cfg.RiskPct <= 0 || cfg.RiskPct >= 1 {
		cfg.RiskPct = 0.2
	}
	return &Breakout{cfg: cfg}
}

func (s *Breakout) Name() string {
	return fmt.Sprintf("breakout(%d)", s.cfg.Lookback)
}

func (s *Breakout) Init(ctx context.Context, b *sim.Broker) error {
	s.buyID, s.sellID = "", ""
	return nil
}

func (s *Breakout) OnBar(ctx context.Context, b *sim.Broker, bar market.Bar) error {
	bars := b.Bars()
	if len(bars) < s.cfg.Lookback+1 {
		return nil
	}
	// Entry stops never outlive the bar they were placed on: both sides are
	// withdrawn here, and re-placed below only while flat.
	if s.buyID != "" {
		b.Cancel(s.buyID)
		s.buyID = ""
	}
	if s.sellID != "" {
		b.Cancel(s.sellID)
		s.sellID = ""
	}
	if b.Position() != 0 {
		return nil
	}

	hi := math.Inf(-1)
	lo := math.Inf(1)
	for _, bb := range bars[len(bars)-s.cfg.Lookback-1 : len(bars)-1] {
		hi = math.Max(hi, bb.High)
		lo = math.Min(lo, bb.Low)
	}

	buy := sim.OrderRequest{
		Size: s.cfg.RiskPct,
		Stop: hi,
		SL:   lo,
		Tag:  "breakout-long",
	}
	sell := sim.OrderRequest{
		Size: -s.cfg.RiskPct,
		Stop: lo,
		SL:   hi,
		Tag:  "breakout-short",
	}
	if s.cfg.LimitOffset > 0 {
		buy.Limit = hi * (1 + s.cfg.LimitOffset)
		sell.Limit = lo * (1 - s.cfg.LimitOffset)
	}

	var err error
	if s.buyID, err = b.Place(buy); err != nil {
		return err
	}
	if s.sellID, err = b.Place(sell); err != nil {
		return err
	}
	return nil
}
