package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// SMACross trades a fast/slow moving-average crossover:
//   - enters long on the fast average crossing above the slow, short on the
//     opposite cross, closing any open exposure first
//   - sizes each entry as a fraction of equity
//   - attaches an ATR-derived stop-loss and a take-profit at RR times the
//     stop distance
//
// Indicator arrays are precomputed in Init over the full series and read only
// up to the current index in OnBar.
type SMACross struct {
	cfg SMACrossConfig

	fast []float64
	slow []float64
	atr  []float64
}

type SMACrossConfig struct {
	Fast    int     // fast period, default 10
	Slow    int     // slow period, default 30
	RiskPct float64 // equity fraction per entry, default 0.2
	RR      float64 // take-profit multiple of the stop distance, default 2
	ATR     int     // ATR period for stops, default 14
}

func NewSMACross(cfg SMACrossConfig) *SMACross {
	if cfg.Fast <= 0 {
		cfg.Fast = 10
	}
	if cfg.Slow <= 0 {
		cfg.Slow = 30
	}
	if cfg.RiskPct <= 0 || cfg.RiskPct >= 1 {
		cfg.RiskPct = 0.2
	}
	if cfg.RR <= 0 {
		cfg.RR = 2
	}
	if cfg.ATR <= 0 {
		cfg.ATR = 14
	}
	return &SMACross{cfg: cfg}
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma-cross(%d,%d)", s.cfg.Fast, s.cfg.Slow)
}

func (s *SMACross) Init(ctx context.Context, b *sim.Broker) error {
	bars := b.Bars() // full series during setup
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	var err error
	if s.fast, err = indicators.SMA(closes, s.cfg.Fast); err != nil {
		return err
	}
	if s.slow, err = indicators.SMA(closes, s.cfg.Slow); err != nil {
		return err
	}
	if s.atr, err = indicators.ATR(bars, s.cfg.ATR); err != nil {
		return err
	}
	return nil
}

func (s *SMACross) OnBar(ctx context.Context, b *sim.Broker, bar market.Bar) error {
	i := b.Index()

	switch {
	case indicators.Crossover(s.fast, s.slow, i):
		return s.enter(b, bar, +1)
	case indicators.Crossover(s.slow, s.fast, i):
		return s.enter(b, bar, -1)
	}
	return nil
}

func (s *SMACross) enter(b *sim.Broker, bar market.Bar, dir float64) error {
	// Close the opposite exposure before reversing. Closing mutates the open
	// list, so iterate a snapshot.
	open := append([]*sim.Trade(nil), b.OpenTrades()...)
	for _, t := range open {
		if t.Size*dir < 0 {
			if err := b.CloseTrade(t.ID, sim.ReasonReversal); err != nil {
				return err
			}
		}
	}

	stopDist := s.atr[b.Index()]
	req := sim.OrderRequest{
		Size: dir * s.cfg.RiskPct,
		Tag:  "sma-cross",
	}
	if stopDist > 0 && stopDist < bar.Close {
		if dir > 0 {
			req.SL = bar.Close - stopDist
			req.TP = bar.Close + stopDist*s.cfg.RR
		} else {
			req.SL = bar.Close + stopDist
			req.TP = bar.Close - stopDist*s.cfg.RR
		}
	}

	_, err := b.Place(req)
	return err
}

var _ backtest.Strategy = (*SMACross)(nil)
