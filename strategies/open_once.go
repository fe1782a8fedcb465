package strategies

import (
	"context"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// OpenOnce places a single market buy on the first bar and holds to the end.
// Useful as a buy-and-hold benchmark and for exercising end-of-data
// liquidation.
type OpenOnce struct {
	Size   float64 // signed order size; defaults to 0.99 of equity
	placed bool
}

func (*OpenOnce) Name() string { return "open-once" }

func (s *OpenOnce) Init(ctx context.Context, b *sim.Broker) error {
	s.placed = false
	return nil
}

func (s *OpenOnce) OnBar(ctx context.Context, b *sim.Broker, bar market.Bar) error {
	if s.placed {
		return nil
	}
	size := s.Size
	if size == 0 {
		size = 0.99
	}
	if _, err := b.Place(sim.OrderRequest{Size: size, Tag: "open-once"}); err != nil {
		return err
	}
	s.placed = true
	return nil
}
