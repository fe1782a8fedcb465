package sim

import "time"

// Trade is one open-to-close exposure episode. Size is signed: positive is
// long. A trade is open iff Open is true; closing sets the exit fields and
// moves it to the closed list.
type Trade struct {
	ID         string
	Size       float64
	EntryBar   int
	EntryTime  time.Time
	EntryPrice float64

	SL float64 // 0 means none
	TP float64 // 0 means none

	ExitBar   int
	ExitTime  time.Time
	ExitPrice float64
	PL        float64 // realized, net of commissions
	Reason    string
	Tag       string
	Open      bool

	// entryCommission is carried until close so realized P&L can absorb a
	// proportional share on partial closes.
	entryCommission float64
}

// UnrealizedPL marks the trade against price.
func (t *Trade) UnrealizedPL(price float64) float64 {
	return t.Size * (price - t.EntryPrice)
}

// marginUsed is the margin this trade consumes at the given leverage.
func (t *Trade) marginUsed(leverage float64) float64 {
	return abs(t.Size) * t.EntryPrice / leverage
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
