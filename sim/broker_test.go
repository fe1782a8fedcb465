package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/market"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// series builds a validated bar series from OHLC quadruples, one bar per
// hour.
func series(t *testing.T, ohlc ...[4]float64) *market.Series {
	t.Helper()
	bars := make([]market.Bar, len(ohlc))
	for i, q := range ohlc {
		bars[i] = market.Bar{
			Time:  testBase.Add(time.Duration(i) * time.Hour),
			Open:  q[0],
			High:  q[1],
			Low:   q[2],
			Close: q[3],
		}
	}
	s, err := market.NewSeries(bars)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	return s
}

// flat is a bar whose four prices are all p.
func flat(p float64) [4]float64 { return [4]float64{p, p, p, p} }

func newTestBroker(t *testing.T, cfg Config, ohlc ...[4]float64) *Broker {
	t.Helper()
	b, err := NewBroker(series(t, ohlc...), cfg, nil)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	b.Clock().Start()
	return b
}

func advance(t *testing.T, b *Broker) {
	t.Helper()
	if err := b.Clock().Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

// settle runs the post-strategy portion of one bar.
func settle(b *Broker) {
	b.ResolveBar()
	b.AccrueEquity()
	b.CheckMargin()
	b.SnapshotEquity()
}

func place(t *testing.T, b *Broker, req OrderRequest) string {
	t.Helper()
	id, err := b.Place(req)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	return id
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMarketOrderFillsNextOpen(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(), flat(10), [4]float64{11, 11.5, 10.5, 11.2})

	advance(t, b)
	place(t, b, OrderRequest{Size: 5})
	settle(b)

	if len(b.OpenTrades()) != 0 {
		t.Fatalf("order filled on its placement bar")
	}
	if len(b.PendingOrders()) != 1 {
		t.Fatalf("expected 1 pending order, got %d", len(b.PendingOrders()))
	}

	advance(t, b)
	settle(b)

	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}
	if open[0].EntryBar != 1 || open[0].EntryPrice != 11 {
		t.Fatalf("fill mismatch: bar=%d price=%v", open[0].EntryBar, open[0].EntryPrice)
	}
	if len(b.PendingOrders()) != 0 {
		t.Fatalf("filled order still pending")
	}
}

func TestMarketOrderTradeOnClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradeOnClose = true
	b := newTestBroker(t, cfg, [4]float64{10, 10.6, 9.9, 10.5}, flat(11))

	advance(t, b)
	place(t, b, OrderRequest{Size: 5})
	settle(b)

	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected fill on placement bar, got %d open trades", len(open))
	}
	if open[0].EntryBar != 0 || open[0].EntryPrice != 10.5 {
		t.Fatalf("fill mismatch: bar=%d price=%v", open[0].EntryBar, open[0].EntryPrice)
	}
}

func TestLimitFillUsesBetterOpen(t *testing.T) {
	// Buy limit at 100; the next bar opens at 98, below the limit, so the
	// fill happens at 98, never worse.
	b := newTestBroker(t, DefaultConfig(), flat(102), [4]float64{98, 99, 97, 98.5})

	advance(t, b)
	place(t, b, OrderRequest{Size: 1, Limit: 100})
	settle(b)

	advance(t, b)
	settle(b)

	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected fill, got %d open trades", len(open))
	}
	if open[0].EntryPrice != 98 {
		t.Fatalf("expected entry at open 98, got %v", open[0].EntryPrice)
	}
}

func TestLimitStaysPendingUntilTouched(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(),
		flat(102),
		[4]float64{102, 103, 101, 102}, // low stays above the limit
		[4]float64{101, 101, 99.5, 100},
	)

	advance(t, b)
	place(t, b, OrderRequest{Size: 1, Limit: 100})
	settle(b)

	advance(t, b)
	settle(b)
	if len(b.OpenTrades()) != 0 {
		t.Fatalf("limit filled without being touched")
	}

	advance(t, b)
	settle(b)
	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected fill, got %d open trades", len(open))
	}
	if open[0].EntryPrice != 100 {
		t.Fatalf("expected entry at limit 100, got %v", open[0].EntryPrice)
	}
}

func TestStopOrderFillsInTriggerBar(t *testing.T) {
	t.Run("within range", func(t *testing.T) {
		b := newTestBroker(t, DefaultConfig(), flat(100), [4]float64{100, 106, 99, 104})
		advance(t, b)
		place(t, b, OrderRequest{Size: 1, Stop: 105})
		settle(b)

		advance(t, b)
		settle(b)
		open := b.OpenTrades()
		if len(open) != 1 || open[0].EntryPrice != 105 {
			t.Fatalf("expected fill at stop 105, got %+v", open)
		}
	})

	t.Run("gap past stop", func(t *testing.T) {
		b := newTestBroker(t, DefaultConfig(), flat(100), [4]float64{110, 112, 109, 111})
		advance(t, b)
		place(t, b, OrderRequest{Size: 1, Stop: 105})
		settle(b)

		advance(t, b)
		settle(b)
		open := b.OpenTrades()
		if len(open) != 1 || open[0].EntryPrice != 110 {
			t.Fatalf("expected fill at open 110, got %+v", open)
		}
	})
}

func TestStopLimitWaitsForTriggerThenLimit(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(),
		flat(100),
		[4]float64{100, 106, 100, 105}, // crosses the stop
		[4]float64{105, 105.5, 103, 104},
	)

	advance(t, b)
	place(t, b, OrderRequest{Size: 1, Stop: 105, Limit: 104})
	settle(b)

	advance(t, b)
	settle(b)
	if len(b.OpenTrades()) != 0 {
		t.Fatalf("stop-limit filled in its trigger bar")
	}

	advance(t, b)
	settle(b)
	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected fill, got %d open trades", len(open))
	}
	if open[0].EntryPrice != 104 {
		t.Fatalf("expected entry at limit 104, got %v", open[0].EntryPrice)
	}
}

func TestStopLossSkipsEntryBar(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(),
		flat(100),
		[4]float64{100, 101, 89, 95}, // entry bar dips below SL
		[4]float64{95, 96, 89, 94},
	)

	advance(t, b)
	place(t, b, OrderRequest{Size: 1, SL: 90})
	settle(b)

	advance(t, b)
	settle(b)
	if len(b.OpenTrades()) != 1 {
		t.Fatalf("stop-loss fired on the trade's own entry bar")
	}

	advance(t, b)
	settle(b)
	closed := b.ClosedTrades()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(closed))
	}
	if closed[0].ExitPrice != 90 || closed[0].Reason != ReasonStopLoss {
		t.Fatalf("exit mismatch: price=%v reason=%q", closed[0].ExitPrice, closed[0].Reason)
	}
}

func TestSpreadAndSlippageAdjustFill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spread = 0.02
	cfg.Slippage = 0.01
	cfg.Hedging = true

	b := newTestBroker(t, cfg, flat(100), flat(100), flat(100))

	advance(t, b)
	place(t, b, OrderRequest{Size: 1})
	place(t, b, OrderRequest{Size: -1})
	settle(b)

	advance(t, b)
	settle(b)

	open := b.OpenTrades()
	if len(open) != 2 {
		t.Fatalf("expected 2 open trades, got %d", len(open))
	}
	// Half the spread plus slippage, against each side.
	if !approxEqual(open[0].EntryPrice, 102, 1e-9) {
		t.Fatalf("buy fill: got %v want 102", open[0].EntryPrice)
	}
	if !approxEqual(open[1].EntryPrice, 98, 1e-9) {
		t.Fatalf("sell fill: got %v want 98", open[1].EntryPrice)
	}
}

func TestFIFOCloseOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hedging = true
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(10), flat(10), flat(10), flat(10))

	for i := 0; i < 3; i++ {
		advance(t, b)
		place(t, b, OrderRequest{Size: 1})
		settle(b)
	}
	if len(b.OpenTrades()) != 2 {
		// Third order fills on the next bar.
		t.Fatalf("expected 2 open trades so far, got %d", len(b.OpenTrades()))
	}

	advance(t, b)
	place(t, b, OrderRequest{Size: -2})
	settle(b)

	advance(t, b)
	settle(b)

	closed := b.ClosedTrades()
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed trades, got %d", len(closed))
	}
	if closed[0].EntryBar != 1 || closed[1].EntryBar != 2 {
		t.Fatalf("close order not FIFO: entry bars %d, %d", closed[0].EntryBar, closed[1].EntryBar)
	}
	open := b.OpenTrades()
	if len(open) != 1 || open[0].EntryBar != 3 {
		t.Fatalf("expected the newest trade to survive, got %+v", open)
	}
	if b.Position() != 1 {
		t.Fatalf("position: got %v want 1", b.Position())
	}
}

func TestPartialCloseShrinksTrade(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(), flat(10), flat(10), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 4})
	settle(b)
	advance(t, b)
	place(t, b, OrderRequest{Size: -1})
	settle(b)
	advance(t, b)
	settle(b)

	open := b.OpenTrades()
	if len(open) != 1 || open[0].Size != 3 {
		t.Fatalf("expected surviving size 3, got %+v", open)
	}
	closed := b.ClosedTrades()
	if len(closed) != 1 || closed[0].Size != 1 {
		t.Fatalf("expected closed record of size 1, got %+v", closed)
	}
	if b.Position() != 3 {
		t.Fatalf("position: got %v want 3", b.Position())
	}
}

func TestFlipOpensRemainder(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(), flat(10), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	place(t, b, OrderRequest{Size: -5})
	settle(b)
	advance(t, b)
	settle(b)

	if len(b.ClosedTrades()) != 1 {
		t.Fatalf("expected the long to close, got %d closed", len(b.ClosedTrades()))
	}
	if b.Position() != -3 {
		t.Fatalf("position after flip: got %v want -3", b.Position())
	}
}

func TestSameDirectionMergesVWAP(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(),
		flat(10), flat(10), flat(20), flat(20), flat(20))

	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	settle(b)

	open := b.OpenTrades()
	if len(open) != 1 {
		t.Fatalf("expected trades to merge, got %d open", len(open))
	}
	if open[0].Size != 4 || !approxEqual(open[0].EntryPrice, 15, 1e-9) {
		t.Fatalf("merge mismatch: size=%v entry=%v", open[0].Size, open[0].EntryPrice)
	}
}

func TestAbsoluteSizeRejectedOnMargin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cash = 1000
	b := newTestBroker(t, cfg, flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 200}) // needs 2000 margin
	settle(b)

	advance(t, b)
	settle(b)

	if len(b.OpenTrades()) != 0 {
		t.Fatalf("unaffordable order filled")
	}
	if len(b.PendingOrders()) != 0 {
		t.Fatalf("rejected order left pending")
	}
	if b.Account().Balance != 1000 {
		t.Fatalf("balance changed on rejection: %v", b.Account().Balance)
	}

	rejected := b.RejectedOrders()
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection event, got %d", len(rejected))
	}
	if !errors.Is(rejected[0].Err, ErrInsufficientMargin) {
		t.Fatalf("rejection error: got %v", rejected[0].Err)
	}
	if rejected[0].Bar != 1 || rejected[0].Order.Size != 200 {
		t.Fatalf("rejection event mismatch: %+v", rejected[0])
	}
}

func TestFractionDownsizedToFreeMargin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cash = 1000
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 60})
	settle(b)
	advance(t, b)
	place(t, b, OrderRequest{Size: 0.99})
	settle(b)
	advance(t, b)
	settle(b)

	// 99 desired units do not fit beside the existing 600 of margin; the
	// fraction shrinks to the 40 units the free margin affords.
	if b.Position() != 100 {
		t.Fatalf("position: got %v want 100", b.Position())
	}
}

func TestFractionSizesOffEquity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cash = 10_000
	cfg.Leverage = 2
	b := newTestBroker(t, cfg, flat(100), flat(100))

	advance(t, b)
	place(t, b, OrderRequest{Size: 0.5})
	settle(b)
	advance(t, b)
	settle(b)

	// 10000 * 0.5 * 2 / 100 = 100 units.
	if b.Position() != 100 {
		t.Fatalf("position: got %v want 100", b.Position())
	}
}

func TestMarginCallLiquidatesAtClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cash = 1000
	cfg.Leverage = 2
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(8))

	advance(t, b)
	place(t, b, OrderRequest{Size: 150})
	settle(b)
	advance(t, b)
	settle(b)
	if len(b.OpenTrades()) != 1 {
		t.Fatalf("expected position to open")
	}

	advance(t, b)
	settle(b)

	calls := b.MarginCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 margin call, got %d", len(calls))
	}
	if !approxEqual(calls[0].Shortfall, 50, 1e-9) {
		t.Fatalf("shortfall: got %v want 50", calls[0].Shortfall)
	}
	closed := b.ClosedTrades()
	if len(closed) != 1 || closed[0].Reason != ReasonMarginCall {
		t.Fatalf("expected a MarginCall close, got %+v", closed)
	}
	if !approxEqual(closed[0].ExitPrice, 8, 1e-9) || !approxEqual(closed[0].PL, -300, 1e-9) {
		t.Fatalf("liquidation mismatch: exit=%v pl=%v", closed[0].ExitPrice, closed[0].PL)
	}
	if !approxEqual(b.Account().Balance, 700, 1e-9) {
		t.Fatalf("balance after liquidation: got %v want 700", b.Account().Balance)
	}
	if len(b.OpenTrades()) != 0 {
		t.Fatalf("trade survived the margin call")
	}
}

func TestExclusiveOrdersSupersedeOpposite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusiveOrders = true
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	settle(b)
	if b.Position() != 2 {
		t.Fatalf("position: got %v want 2", b.Position())
	}

	place(t, b, OrderRequest{Size: -1})
	advance(t, b)
	settle(b)

	closed := b.ClosedTrades()
	if len(closed) != 1 || closed[0].Reason != ReasonReversal {
		t.Fatalf("expected a Reversal close, got %+v", closed)
	}
	if b.Position() != -1 {
		t.Fatalf("position after reversal: got %v want -1", b.Position())
	}
}

func TestExclusiveOrderClosesOppositeWithoutFill(t *testing.T) {
	// The superseded side closes at the next open even when the new order
	// itself never becomes fillable.
	cfg := DefaultConfig()
	cfg.ExclusiveOrders = true
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	settle(b)
	if b.Position() != 2 {
		t.Fatalf("position: got %v want 2", b.Position())
	}

	place(t, b, OrderRequest{Size: -1, Limit: 50})
	advance(t, b)
	settle(b)

	if b.Position() != 0 {
		t.Fatalf("opposite trade survived the exclusive order: pos=%v", b.Position())
	}
	closed := b.ClosedTrades()
	if len(closed) != 1 || closed[0].Reason != ReasonReversal || closed[0].ExitPrice != 10 {
		t.Fatalf("expected a Reversal close at the open, got %+v", closed)
	}
	pending := b.PendingOrders()
	if len(pending) != 1 || pending[0].Kind != Limit {
		t.Fatalf("untouched limit should stay pending, got %+v", pending)
	}
}

func TestExclusiveOrderClosesOppositeOnClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusiveOrders = true
	cfg.TradeOnClose = true
	b := newTestBroker(t, cfg, flat(10), [4]float64{10, 12, 10, 12})

	advance(t, b)
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	if b.Position() != 2 {
		t.Fatalf("position: got %v want 2", b.Position())
	}

	advance(t, b)
	place(t, b, OrderRequest{Size: -1, Limit: 50})
	settle(b)

	// Trade-on-close resolves the queued close on its placement bar.
	closed := b.ClosedTrades()
	if len(closed) != 1 || closed[0].Reason != ReasonReversal || closed[0].ExitPrice != 12 {
		t.Fatalf("expected a Reversal close at the bar close, got %+v", closed)
	}
	if b.Position() != 0 {
		t.Fatalf("position after reversal: got %v want 0", b.Position())
	}
}

func TestExclusiveOrdersCancelOppositePending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExclusiveOrders = true
	b := newTestBroker(t, cfg, flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 1, Limit: 9})
	place(t, b, OrderRequest{Size: -1, Limit: 11})

	pending := b.PendingOrders()
	if len(pending) != 1 || pending[0].IsBuy() {
		t.Fatalf("expected only the sell to remain pending, got %+v", pending)
	}
}

func TestPlaceValidation(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(), flat(10), flat(10))
	advance(t, b)

	if _, err := b.Place(OrderRequest{Size: 0}); err == nil {
		t.Fatalf("zero size accepted")
	}
	if _, err := b.Place(OrderRequest{Size: 1, Limit: -5}); err == nil {
		t.Fatalf("negative limit accepted")
	}
	if _, err := b.Place(OrderRequest{Size: 1, SL: -1}); err == nil {
		t.Fatalf("negative stop-loss accepted")
	}
}

func TestSetSLAndTP(t *testing.T) {
	b := newTestBroker(t, DefaultConfig(), flat(10), flat(10), flat(10))

	advance(t, b)
	place(t, b, OrderRequest{Size: 1})
	settle(b)
	advance(t, b)
	settle(b)

	tr := b.OpenTrades()[0]
	if err := b.SetSL(tr.ID, 9); err != nil {
		t.Fatalf("set sl: %v", err)
	}
	if err := b.SetTP(tr.ID, 12); err != nil {
		t.Fatalf("set tp: %v", err)
	}
	if tr.SL != 9 || tr.TP != 12 {
		t.Fatalf("levels not applied: sl=%v tp=%v", tr.SL, tr.TP)
	}

	if err := b.SetSL(tr.ID, 0); err != nil {
		t.Fatalf("remove sl: %v", err)
	}
	if tr.SL != 0 {
		t.Fatalf("stop-loss not removed")
	}

	if err := b.SetSL("no-such-trade", 9); err == nil {
		t.Fatalf("unknown trade accepted")
	}
}

func TestCloseTradeAndCloseAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hedging = true
	b := newTestBroker(t, cfg, flat(10), flat(10), flat(12))

	advance(t, b)
	place(t, b, OrderRequest{Size: 1})
	place(t, b, OrderRequest{Size: 2})
	settle(b)
	advance(t, b)
	settle(b)
	if len(b.OpenTrades()) != 2 {
		t.Fatalf("expected 2 open trades")
	}

	advance(t, b)
	first := b.OpenTrades()[0]
	if err := b.CloseTrade(first.ID, ""); err != nil {
		t.Fatalf("close trade: %v", err)
	}
	if first.Reason != ReasonManual || first.ExitPrice != 12 {
		t.Fatalf("manual close mismatch: %+v", first)
	}

	b.CloseAll(ReasonEndOfData)
	if len(b.OpenTrades()) != 0 {
		t.Fatalf("trades left open after CloseAll")
	}
	if got := b.ClosedTrades()[1].Reason; got != ReasonEndOfData {
		t.Fatalf("close reason: got %q", got)
	}
}

func TestCashConservation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cash = 10_000
	cfg.CommissionRate = 0.01
	b := newTestBroker(t, cfg,
		flat(10), flat(11), flat(9), flat(12), flat(10), flat(13))

	sizes := []float64{4, -1, -6, 3}
	for _, sz := range sizes {
		advance(t, b)
		place(t, b, OrderRequest{Size: sz})
		settle(b)
	}
	advance(t, b)
	settle(b)
	advance(t, b)
	b.CloseAll(ReasonEndOfData)
	b.AccrueEquity()

	var sum float64
	for _, tr := range b.ClosedTrades() {
		sum += tr.PL
	}
	if got, want := b.Account().Balance, cfg.Cash+sum; !approxEqual(got, want, 1e-9) {
		t.Fatalf("balance drifted from ledger: got %.9f want %.9f", got, want)
	}
	if !approxEqual(b.Account().Equity, b.Account().Balance, 1e-9) {
		t.Fatalf("flat account equity != balance: %v vs %v", b.Account().Equity, b.Account().Balance)
	}
}
