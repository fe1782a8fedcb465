package backtest

import (
	"context"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Strategy is the decision-making collaborator. The engine calls Init once
// before the first bar, while the broker's clock still exposes the full
// series; this is where indicator arrays get precomputed. OnBar is then
// called exactly once per bar with the progressively revealed view: the
// broker's Bars() never includes bars past the one being processed.
//
// Strategies emit orders through the broker and may read position, open
// trades, and account state. They must not retain or mutate bar slices.
type Strategy interface {
	Name() string
	Init(ctx context.Context, b *sim.Broker) error
	OnBar(ctx context.Context, b *sim.Broker, bar market.Bar) error
}
