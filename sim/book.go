package sim

import "github.com/rustyeddy/backtester/market"

// Book holds pending orders in placement order. Each bar, every order either
// fills, stays pending, or is removed by an explicit cancel or a margin
// rejection. Evaluation uses only the current bar's OHLC and state known at
// the close of the previous bar.
type Book struct {
	orders []*Order
}

func (bk *Book) Add(o *Order) {
	bk.orders = append(bk.orders, o)
}

// Cancel removes a pending order without side effects. Returns false when
// the ID is unknown (already filled or never placed).
func (bk *Book) Cancel(id string) bool {
	for i, o := range bk.orders {
		if o.ID == id {
			bk.orders = append(bk.orders[:i], bk.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (bk *Book) CancelAll() {
	bk.orders = bk.orders[:0]
}

// CancelDirection removes pending orders on one side (buy when buys is true).
// Used by the exclusive-orders policy.
func (bk *Book) CancelDirection(buys bool) {
	kept := bk.orders[:0]
	for _, o := range bk.orders {
		if o.IsBuy() == buys {
			continue
		}
		kept = append(kept, o)
	}
	bk.orders = kept
}

func (bk *Book) Pending() []*Order { return bk.orders }

func (bk *Book) remove(o *Order) {
	for i, p := range bk.orders {
		if p == o {
			bk.orders = append(bk.orders[:i], bk.orders[i+1:]...)
			return
		}
	}
}

// eval decides whether the order fills on bar b (index idx) and at what raw
// price, before spread, slippage, and commission. Dispatch is one function
// per kind.
func (bk *Book) eval(o *Order, b market.Bar, idx int, tradeOnClose bool) (float64, bool) {
	switch o.Kind {
	case Market:
		return evalMarket(o, b, idx, tradeOnClose)
	case Limit:
		return evalLimit(o, b, idx, o.placedBar)
	case Stop:
		return evalStop(o, b, idx)
	case StopLimit:
		return evalStopLimit(o, b, idx)
	}
	return 0, false
}

// evalMarket fills at the next bar's open by default. With trade-on-close the
// order fills on its placement bar at that bar's close instead.
func evalMarket(o *Order, b market.Bar, idx int, tradeOnClose bool) (float64, bool) {
	if tradeOnClose && idx == o.placedBar {
		return b.Close, true
	}
	if idx > o.placedBar {
		return b.Open, true
	}
	return 0, false
}

// evalLimit fills when the bar range crosses the limit favorably. The open is
// used instead of the limit when the bar opened beyond it, since the order
// would have executed at that better price.
func evalLimit(o *Order, b market.Bar, idx, sinceBar int) (float64, bool) {
	if idx <= sinceBar {
		return 0, false
	}
	if o.IsBuy() {
		if b.Low <= o.Limit {
			return min(b.Open, o.Limit), true
		}
	} else {
		if b.High >= o.Limit {
			return max(b.Open, o.Limit), true
		}
	}
	return 0, false
}

// evalStop becomes a live market order once the range crosses the stop price
// and executes within the trigger bar at the first reachable price: the stop
// itself, or the open when the bar gapped past it.
func evalStop(o *Order, b market.Bar, idx int) (float64, bool) {
	if idx <= o.placedBar {
		return 0, false
	}
	if o.IsBuy() {
		if b.High >= o.Stop {
			return max(b.Open, o.Stop), true
		}
	} else {
		if b.Low <= o.Stop {
			return min(b.Open, o.Stop), true
		}
	}
	return 0, false
}

// evalStopLimit waits for the stop condition, then behaves as a limit order
// from the following bar onward.
func evalStopLimit(o *Order, b market.Bar, idx int) (float64, bool) {
	if !o.stopHit {
		if idx <= o.placedBar {
			return 0, false
		}
		crossed := (o.IsBuy() && b.High >= o.Stop) || (!o.IsBuy() && b.Low <= o.Stop)
		if crossed {
			o.stopHit = true
			o.triggeredBar = idx
		}
		return 0, false
	}
	return evalLimit(o, b, idx, o.triggeredBar)
}

// evalExit checks a trade's attached SL/TP against the bar. When both fall
// inside the range the tie-break follows policy, except that an open gapping
// past either level always executes at the open, since the bar began there.
func evalExit(t *Trade, b market.Bar, policy TiePolicy) (price float64, reason string, hit bool) {
	var slHit, tpHit bool

	if t.Size > 0 {
		slHit = t.SL != 0 && b.Low <= t.SL
		tpHit = t.TP != 0 && b.High >= t.TP
		if slHit && b.Open <= t.SL {
			return b.Open, ReasonStopLoss, true
		}
		if tpHit && b.Open >= t.TP {
			return b.Open, ReasonTakeProfit, true
		}
	} else {
		slHit = t.SL != 0 && b.High >= t.SL
		tpHit = t.TP != 0 && b.Low <= t.TP
		if slHit && b.Open >= t.SL {
			return b.Open, ReasonStopLoss, true
		}
		if tpHit && b.Open <= t.TP {
			return b.Open, ReasonTakeProfit, true
		}
	}

	switch {
	case slHit && tpHit:
		if policy == TakeFirst {
			return t.TP, ReasonTakeProfit, true
		}
		return t.SL, ReasonStopLoss, true
	case slHit:
		return t.SL, ReasonStopLoss, true
	case tpHit:
		return t.TP, ReasonTakeProfit, true
	}
	return 0, "", false
}
