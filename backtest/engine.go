// Package backtest drives a strategy over a bar series against the simulated
// broker, one bar at a time, in a fixed per-bar order. Processing is strictly
// sequential: bar N+1 never begins before bar N's fills, ledger updates, and
// margin check are final.
package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Engine is the simulation driver. It is the only component that calls the
// strategy, and it does so exactly once per bar.
type Engine struct {
	Broker   *sim.Broker
	Strategy Strategy
}

// New wires a fresh broker for the series and config. The journal may be nil.
func New(series *market.Series, cfg sim.Config, strat Strategy, jrnl journal.Journal) (*Engine, error) {
	if strat == nil {
		return nil, fmt.Errorf("backtest: Strategy is required")
	}
	broker, err := sim.NewBroker(series, cfg, jrnl)
	if err != nil {
		return nil, err
	}
	return &Engine{Broker: broker, Strategy: strat}, nil
}

// Run executes the whole series. Per bar: advance the clock, invoke the
// strategy, resolve orders into fills, accrue equity, enforce margin, and
// snapshot. End of data liquidates any remaining trades at the last close.
//
// Cancellation is run-granular: ctx aborts the whole run between bars, never
// mid-bar.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	b := e.Broker
	clock := b.Clock()

	if err := e.Strategy.Init(ctx, b); err != nil {
		return Result{}, fmt.Errorf("strategy init: %w", err)
	}
	clock.Start()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if err := clock.Advance(); err != nil {
			if errors.Is(err, sim.ErrEndOfData) {
				break
			}
			return Result{}, err
		}
		bar := clock.Bar()

		if err := e.Strategy.OnBar(ctx, b, bar); err != nil {
			return Result{}, fmt.Errorf("strategy bar %d: %w", clock.Index(), err)
		}

		b.ResolveBar()
		b.AccrueEquity()
		b.CheckMargin()
		if err := b.SnapshotEquity(); err != nil {
			return Result{}, fmt.Errorf("journal equity at bar %d: %w", clock.Index(), err)
		}
	}

	// Final liquidation at the last close. This is the only close not
	// confirmed by an order mechanism.
	b.CloseAll(sim.ReasonEndOfData)
	b.AccrueEquity()

	return e.result(), nil
}

func (e *Engine) result() Result {
	b := e.Broker
	acct := b.Account()

	closed := b.ClosedTrades()
	trades := make([]sim.Trade, len(closed))
	for i, t := range closed {
		trades[i] = *t
	}

	r := Result{
		RunID:        b.RunID(),
		Strategy:     e.Strategy.Name(),
		Bars:         b.Clock().Len(),
		Trades:       trades,
		EquityCurve:  append([]float64(nil), b.EquityCurve()...),
		MarginCalls:  append([]sim.MarginCall(nil), b.MarginCalls()...),
		Rejected:     append([]sim.RejectedOrder(nil), b.RejectedOrders()...),
		FinalBalance: acct.Balance,
		FinalEquity:  acct.Equity,
	}
	if n := b.Clock().Len(); n > 0 {
		r.Start = b.Clock().BarAt(0).Time
		r.End = b.Clock().BarAt(n - 1).Time
	}
	return r
}
