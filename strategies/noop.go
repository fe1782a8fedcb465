package strategies

import (
	"context"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Noop does nothing. Baseline: a run with it must end with the starting cash.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Init(ctx context.Context, b *sim.Broker) error { return nil }

func (Noop) OnBar(ctx context.Context, b *sim.Broker, bar market.Bar) error {
	return nil
}
