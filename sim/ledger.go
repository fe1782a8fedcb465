package sim

import (
	"time"

	"github.com/rustyeddy/backtester/internal/id"
)

// Close reasons recorded on trades.
const (
	ReasonStopLoss   = "StopLoss"
	ReasonTakeProfit = "TakeProfit"
	ReasonClosed     = "Closed"
	ReasonReversal   = "Reversal"
	ReasonMarginCall = "MarginCall"
	ReasonEndOfData  = "EndOfData"
	ReasonManual     = "ManualClose"
)

// Ledger owns the open trade set and the closed trade history. Open trades
// keep insertion order, which is the FIFO order opposing fills consume them
// in. The aggregate position is derived, never stored.
type Ledger struct {
	hedging bool
	open    []*Trade
	closed  []*Trade
}

func NewLedger(hedging bool) *Ledger {
	return &Ledger{hedging: hedging}
}

func (l *Ledger) OpenTrades() []*Trade { return l.open }

func (l *Ledger) ClosedTrades() []*Trade { return l.closed }

// Position is the signed sum of all open trade sizes; 0 means flat.
func (l *Ledger) Position() float64 {
	var pos float64
	for _, t := range l.open {
		pos += t.Size
	}
	return pos
}

// Find returns the open trade with the given ID, or nil.
func (l *Ledger) Find(tradeID string) *Trade {
	for _, t := range l.open {
		if t.ID == tradeID {
			return t
		}
	}
	return nil
}

// MarginUsed sums margin consumption across open trades.
func (l *Ledger) MarginUsed(leverage float64) float64 {
	var used float64
	for _, t := range l.open {
		used += t.marginUsed(leverage)
	}
	return used
}

// UnrealizedPL marks all open trades against price.
func (l *Ledger) UnrealizedPL(price float64) float64 {
	var pl float64
	for _, t := range l.open {
		pl += t.UnrealizedPL(price)
	}
	return pl
}

func (l *Ledger) add(t *Trade) {
	l.open = append(l.open, t)
}

// sameDirection finds an open trade matching the sign of size, for merging
// when hedging is off.
func (l *Ledger) sameDirection(size float64) *Trade {
	for _, t := range l.open {
		if (t.Size > 0) == (size > 0) {
			return t
		}
	}
	return nil
}

// closeAt closes the whole trade at price. exitCom is the commission of the
// closing fill. Returns the cash delta to apply to the balance (raw P&L less
// exit commission; the entry commission was already paid from cash at entry).
func (l *Ledger) closeAt(t *Trade, barIdx int, tm time.Time, price, exitCom float64, reason string) float64 {
	rawPL := t.Size * (price - t.EntryPrice)

	t.ExitBar = barIdx
	t.ExitTime = tm
	t.ExitPrice = price
	t.PL = rawPL - exitCom - t.entryCommission
	t.Reason = reason
	t.Open = false

	for i, o := range l.open {
		if o == t {
			l.open = append(l.open[:i], l.open[i+1:]...)
			break
		}
	}
	l.closed = append(l.closed, t)

	return rawPL - exitCom
}

// reduceAt closes units (a positive magnitude) out of the trade, splitting
// off a closed record and shrinking the survivor. A proportional share of the
// entry commission moves into the closed portion's P&L. Returns the closed
// record and the cash delta.
func (l *Ledger) reduceAt(t *Trade, units float64, barIdx int, tm time.Time, price, exitCom float64, reason string) (*Trade, float64) {
	sign := 1.0
	if t.Size < 0 {
		sign = -1
	}
	closedSize := sign * units
	portion := units / abs(t.Size)

	rawPL := closedSize * (price - t.EntryPrice)
	comShare := t.entryCommission * portion

	rec := &Trade{
		ID:         id.New(),
		Size:       closedSize,
		EntryBar:   t.EntryBar,
		EntryTime:  t.EntryTime,
		EntryPrice: t.EntryPrice,
		SL:         t.SL,
		TP:         t.TP,
		ExitBar:    barIdx,
		ExitTime:   tm,
		ExitPrice:  price,
		PL:         rawPL - exitCom - comShare,
		Reason:     reason,
		Tag:        t.Tag,
	}
	l.closed = append(l.closed, rec)

	t.Size -= closedSize
	t.entryCommission -= comShare

	return rec, rawPL - exitCom
}

// merge folds a same-direction fill into an existing open trade at the
// volume-weighted entry price. The entry bar stays at the older entry.
func (l *Ledger) merge(t *Trade, size, price, entryCom, sl, tp float64) {
	newSize := t.Size + size
	t.EntryPrice = (t.Size*t.EntryPrice + size*price) / newSize
	t.Size = newSize
	t.entryCommission += entryCom
	if sl != 0 {
		t.SL = sl
	}
	if tp != 0 {
		t.TP = tp
	}
}
