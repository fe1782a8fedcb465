package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/backtester/internal/id"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
)

// Account is the broker's money view. Balance is cash; Equity marks open
// trades to the latest close. All values are recomputed once per bar after
// fills are applied, so an order sized off Equity always reads the value
// computed at the end of the previous bar.
type Account struct {
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

// MarginCall is one forced liquidation event. Reported in the run output,
// never raised as an error.
type MarginCall struct {
	Bar       int
	Time      time.Time
	TradeID   string
	Size      float64
	Price     float64
	Shortfall float64
}

// RejectedOrder is an order dropped at resolve time. Like margin calls,
// rejections are reported in the run output rather than raised.
type RejectedOrder struct {
	Bar   int
	Order Order
	Err   error
}

// queuedClose is an opposite-direction trade superseded by an exclusive
// order. It closes at the next market price after bar, whether or not the
// superseding order ever fills.
type queuedClose struct {
	trade *Trade
	bar   int
}

// Broker is the per-run simulation context: clock, order book, ledger, and
// account, threaded explicitly through the driver and the strategy. Nothing
// here is shared between runs, which is what makes parameter sweeps
// embarrassingly parallel.
type Broker struct {
	cfg    Config
	runID  string
	clock  *Clock
	book   Book
	ledger *Ledger
	acct   Account

	jrnl        journal.Journal
	equityCurve []float64
	marginCalls []MarginCall
	rejected    []RejectedOrder
	reversals   []queuedClose
}

func NewBroker(series *market.Series, cfg Config, jrnl journal.Journal) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	return &Broker{
		cfg:    cfg,
		runID:  id.New(),
		clock:  NewClock(series),
		ledger: NewLedger(cfg.Hedging),
		acct: Account{
			Balance:    cfg.Cash,
			Equity:     cfg.Cash,
			FreeMargin: cfg.Cash,
		},
		jrnl: jrnl,
	}, nil
}

func (b *Broker) RunID() string { return b.runID }

func (b *Broker) Clock() *Clock { return b.clock }

// Bars is the progressively revealed bar view for strategies.
func (b *Broker) Bars() []market.Bar { return b.clock.View() }

func (b *Broker) Index() int { return b.clock.Index() }

func (b *Broker) Account() Account { return b.acct }

func (b *Broker) Position() float64 { return b.ledger.Position() }

func (b *Broker) OpenTrades() []*Trade { return b.ledger.OpenTrades() }

func (b *Broker) ClosedTrades() []*Trade { return b.ledger.ClosedTrades() }

func (b *Broker) PendingOrders() []*Order { return b.book.Pending() }

func (b *Broker) EquityCurve() []float64 { return b.equityCurve }

func (b *Broker) MarginCalls() []MarginCall { return b.marginCalls }

func (b *Broker) RejectedOrders() []RejectedOrder { return b.rejected }

// Place registers an order. With exclusive orders on, pending orders in the
// opposite direction are canceled immediately and opposite open trades are
// queued for a market close at the next resolvable price, whether or not the
// new order ever fills.
func (b *Broker) Place(req OrderRequest) (string, error) {
	if req.Size == 0 {
		return "", fmt.Errorf("order: size must be non-zero")
	}
	if req.Limit < 0 || req.Stop < 0 || req.SL < 0 || req.TP < 0 {
		return "", fmt.Errorf("order: negative price level")
	}

	o := &Order{
		ID:         id.New(),
		Kind:       req.kind(),
		Size:       req.Size,
		Limit:      req.Limit,
		Stop:       req.Stop,
		SL:         req.SL,
		TP:         req.TP,
		Tag:        req.Tag,
		fractional: math.Abs(req.Size) < 1,
		placedBar:  b.clock.Index(),
	}

	if b.cfg.ExclusiveOrders {
		b.book.CancelDirection(!o.IsBuy())
		for _, t := range b.opposing(o.Size) {
			if !b.closeQueued(t) {
				b.reversals = append(b.reversals, queuedClose{trade: t, bar: o.placedBar})
			}
		}
	}

	b.book.Add(o)
	return o.ID, nil
}

func (b *Broker) closeQueued(t *Trade) bool {
	for _, q := range b.reversals {
		if q.trade == t {
			return true
		}
	}
	return false
}

// Cancel removes a pending order. Unknown IDs report false.
func (b *Broker) Cancel(orderID string) bool {
	return b.book.Cancel(orderID)
}

func (b *Broker) CancelAll() {
	b.book.CancelAll()
}

// SetSL attaches or replaces the stop-loss of an open trade. Price 0 removes
// it; the trade stays open either way.
func (b *Broker) SetSL(tradeID string, price float64) error {
	t := b.ledger.Find(tradeID)
	if t == nil {
		return fmt.Errorf("trade %q not open", tradeID)
	}
	t.SL = price
	return nil
}

// SetTP attaches or replaces the take-profit of an open trade. Price 0
// removes it.
func (b *Broker) SetTP(tradeID string, price float64) error {
	t := b.ledger.Find(tradeID)
	if t == nil {
		return fmt.Errorf("trade %q not open", tradeID)
	}
	t.TP = price
	return nil
}

// CloseTrade closes an open trade at the current bar's close.
func (b *Broker) CloseTrade(tradeID, reason string) error {
	t := b.ledger.Find(tradeID)
	if t == nil {
		return fmt.Errorf("trade %q not open", tradeID)
	}
	if reason == "" {
		reason = ReasonManual
	}
	bar := b.clock.Bar()
	b.closeTrade(t, bar.Close, bar, reason)
	return nil
}

// CloseAll closes every open trade at the current bar's close. The driver
// calls this with ReasonEndOfData when the series is exhausted; strategies
// may call it to go flat.
func (b *Broker) CloseAll(reason string) {
	if reason == "" {
		reason = ReasonManual
	}
	bar := b.clock.Bar()
	for len(b.ledger.OpenTrades()) > 0 {
		b.closeTrade(b.ledger.OpenTrades()[0], bar.Close, bar, reason)
	}
}

// ResolveBar runs the matching step for the current bar: queued exclusive
// closes first, then contingent SL/TP exits, then pending orders in placement
// order. Every fill applied here removes its order in the same step; no order
// fills twice.
func (b *Broker) ResolveBar() {
	idx := b.clock.Index()
	bar := b.clock.Bar()

	// Superseded trades close at the same market price a market order would
	// get: this bar's close under trade-on-close, the next open otherwise.
	if len(b.reversals) > 0 {
		kept := b.reversals[:0]
		for _, q := range b.reversals {
			if !q.trade.Open {
				continue
			}
			switch {
			case b.cfg.TradeOnClose && idx == q.bar:
				b.closeTrade(q.trade, bar.Close, bar, ReasonReversal)
			case idx > q.bar:
				b.closeTrade(q.trade, bar.Open, bar, ReasonReversal)
			default:
				kept = append(kept, q)
			}
		}
		b.reversals = kept
	}

	// Contingent exits on trades entered before this bar.
	open := append([]*Trade(nil), b.ledger.OpenTrades()...)
	for _, t := range open {
		if !t.Open || t.EntryBar >= idx {
			continue
		}
		if price, reason, hit := evalExit(t, bar, b.cfg.TiePolicy); hit {
			b.closeTrade(t, price, bar, reason)
		}
	}

	// Entry orders.
	pending := append([]*Order(nil), b.book.Pending()...)
	for _, o := range pending {
		raw, ok := b.book.eval(o, bar, idx, b.cfg.TradeOnClose)
		if !ok {
			continue
		}
		b.book.remove(o)
		b.execFill(o, raw, bar, idx)
	}
}

// AccrueEquity recomputes equity and margin off the current bar's close.
func (b *Broker) AccrueEquity() {
	bar := b.clock.Bar()
	b.revalue(bar.Close)
}

// CheckMargin fails closed: while margin used exceeds equity, the open trade
// consuming the most margin (oldest first on ties) is liquidated at the
// current close, and the event is recorded. The run continues.
func (b *Broker) CheckMargin() {
	bar := b.clock.Bar()

	for b.acct.MarginUsed > b.acct.Equity && len(b.ledger.OpenTrades()) > 0 {
		var victim *Trade
		var victimMargin float64
		for _, t := range b.ledger.OpenTrades() {
			m := t.marginUsed(b.cfg.Leverage)
			if victim == nil || m > victimMargin ||
				(m == victimMargin && t.EntryBar < victim.EntryBar) {
				victim = t
				victimMargin = m
			}
		}

		call := MarginCall{
			Bar:       b.clock.Index(),
			Time:      bar.Time,
			TradeID:   victim.ID,
			Size:      victim.Size,
			Price:     bar.Close,
			Shortfall: b.acct.MarginUsed - b.acct.Equity,
		}
		b.marginCalls = append(b.marginCalls, call)
		// Best effort: the call is already in the in-memory result.
		_ = b.jrnl.RecordMarginCall(journal.MarginCallRecord{
			RunID:     b.runID,
			Bar:       call.Bar,
			Time:      call.Time,
			TradeID:   call.TradeID,
			Size:      call.Size,
			Price:     call.Price,
			Shortfall: call.Shortfall,
		})

		b.closeTrade(victim, bar.Close, bar, ReasonMarginCall)
		b.revalue(bar.Close)
	}
}

// SnapshotEquity appends the bar's final equity to the curve and journals it.
// Called by the driver once per bar, after the margin check. A journal write
// failure is reported so the driver can abort rather than finish a run with a
// silently truncated equity record.
func (b *Broker) SnapshotEquity() error {
	bar := b.clock.Bar()
	b.equityCurve = append(b.equityCurve, b.acct.Equity)
	return b.jrnl.RecordEquity(journal.EquitySnapshot{
		RunID:       b.runID,
		Bar:         b.clock.Index(),
		Time:        bar.Time,
		Balance:     b.acct.Balance,
		Equity:      b.acct.Equity,
		MarginUsed:  b.acct.MarginUsed,
		FreeMargin:  b.acct.FreeMargin,
		MarginLevel: b.acct.MarginLevel,
	})
}

// execFill turns a triggered order into ledger mutations: price adjustment,
// size resolution, FIFO closing of opposing trades, margin check, and the
// opening of any remainder.
func (b *Broker) execFill(o *Order, raw float64, bar market.Bar, idx int) {
	price := b.adjust(raw, o.IsBuy())

	units := b.resolveUnits(o, price)
	if units == 0 {
		return
	}

	// Close opposing exposure FIFO, oldest entry first. Under exclusive
	// orders the opposite side was already closed by the placement queue.
	remaining := units
	for _, t := range b.opposing(remaining) {
		if remaining == 0 {
			break
		}
		if abs(t.Size) <= abs(remaining) {
			remaining += t.Size
			b.closeTrade(t, price, bar, ReasonClosed)
		} else {
			mag := abs(remaining)
			exitCom := b.commission(mag, price)
			rec, delta := b.ledger.reduceAt(t, mag, idx, bar.Time, price, exitCom, ReasonClosed)
			b.acct.Balance += delta
			b.recordClosed(rec)
			remaining = 0
		}
	}
	if remaining == 0 {
		return
	}

	// The remainder opens or extends exposure and must fit in free margin.
	remaining = b.fitMargin(o, remaining, price)
	if remaining == 0 {
		b.rejected = append(b.rejected, RejectedOrder{
			Bar:   idx,
			Order: *o,
			Err:   ErrInsufficientMargin,
		})
		return
	}

	entryCom := b.commission(abs(remaining), price)
	b.acct.Balance -= entryCom

	if !b.cfg.Hedging {
		if t := b.ledger.sameDirection(remaining); t != nil {
			b.ledger.merge(t, remaining, price, entryCom, o.SL, o.TP)
			return
		}
	}
	b.ledger.add(&Trade{
		ID:              id.New(),
		Size:            remaining,
		EntryBar:        idx,
		EntryTime:       bar.Time,
		EntryPrice:      price,
		SL:              o.SL,
		TP:              o.TP,
		Tag:             o.Tag,
		Open:            true,
		entryCommission: entryCom,
	})
}

// adjust applies spread and slippage against the order's direction.
func (b *Broker) adjust(price float64, buy bool) float64 {
	adj := b.cfg.Spread/2 + b.cfg.Slippage
	if buy {
		return price * (1 + adj)
	}
	return price * (1 - adj)
}

// resolveUnits converts the order's signed size into signed units. Fractions
// spend that share of equity as margin at the fill price; absolute sizes pass
// through, floored to whole units unless fractional sizing is allowed.
func (b *Broker) resolveUnits(o *Order, price float64) float64 {
	sign := 1.0
	if o.Size < 0 {
		sign = -1
	}

	var units float64
	if o.fractional {
		units = b.acct.Equity * math.Abs(o.Size) * b.cfg.Leverage / price
	} else {
		units = math.Abs(o.Size)
	}
	if !b.cfg.FractionalSizing {
		units = math.Floor(units)
	}
	return sign * units
}

// fitMargin checks the margin a new exposure would need. Fraction-sized
// orders are downsized to the maximum affordable size; absolute-unit orders
// that do not fit are rejected outright.
func (b *Broker) fitMargin(o *Order, units, price float64) float64 {
	need := abs(units) * price / b.cfg.Leverage
	free := b.acct.Equity - b.ledger.MarginUsed(b.cfg.Leverage)
	if need <= free {
		return units
	}
	if !o.fractional {
		return 0
	}

	affordable := free * b.cfg.Leverage / price
	if !b.cfg.FractionalSizing {
		affordable = math.Floor(affordable)
	}
	if affordable <= 0 {
		return 0
	}
	if units < 0 {
		return -affordable
	}
	return affordable
}

func (b *Broker) commission(units, price float64) float64 {
	return b.cfg.CommissionRate*units*price + b.cfg.CommissionFixed*units
}

// opposing returns open trades whose direction opposes size, in FIFO order.
func (b *Broker) opposing(size float64) []*Trade {
	var out []*Trade
	for _, t := range b.ledger.OpenTrades() {
		if (t.Size > 0) != (size > 0) {
			out = append(out, t)
		}
	}
	return out
}

func (b *Broker) closeTrade(t *Trade, price float64, bar market.Bar, reason string) {
	exitCom := b.commission(abs(t.Size), price)
	delta := b.ledger.closeAt(t, b.clock.Index(), bar.Time, price, exitCom, reason)
	b.acct.Balance += delta
	b.recordClosed(t)
}

// recordClosed journals a closed trade best effort; the trade is already in
// the in-memory ledger the run output is built from.
func (b *Broker) recordClosed(t *Trade) {
	_ = b.jrnl.RecordTrade(journal.TradeRecord{
		TradeID:    t.ID,
		RunID:      b.runID,
		Size:       t.Size,
		EntryBar:   t.EntryBar,
		ExitBar:    t.ExitBar,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		EntryTime:  t.EntryTime,
		ExitTime:   t.ExitTime,
		PL:         t.PL,
		Reason:     t.Reason,
		Tag:        t.Tag,
	})
}

// revalue recomputes equity and margin at the given mark price.
func (b *Broker) revalue(mark float64) {
	b.acct.Equity = b.acct.Balance + b.ledger.UnrealizedPL(mark)
	b.acct.MarginUsed = b.ledger.MarginUsed(b.cfg.Leverage)
	b.acct.FreeMargin = b.acct.Equity - b.acct.MarginUsed

	if b.acct.MarginUsed > 0 {
		b.acct.MarginLevel = b.acct.Equity / b.acct.MarginUsed
	} else {
		b.acct.MarginLevel = 0
	}
}
