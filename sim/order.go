package sim

import "fmt"

// Kind discriminates the order variants. All kinds share the Order struct;
// the Book dispatches on Kind with one evaluation function each.
type Kind int8

const (
	Market Kind = iota
	Limit
	Stop
	StopLimit
)

func (k Kind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// OrderRequest is what a strategy submits. Size is signed: positive buys,
// negative sells. A magnitude below 1 is a fraction of current equity;
// a magnitude of 1 or more is absolute units. The kind is inferred from
// which trigger prices are set: both -> stop-limit, limit only -> limit,
// stop only -> stop, neither -> market.
type OrderRequest struct {
	Size  float64
	Limit float64 // 0 means none
	Stop  float64 // 0 means none
	SL    float64 // stop-loss to attach to the resulting trade
	TP    float64 // take-profit to attach to the resulting trade
	Tag   string
}

func (r OrderRequest) kind() Kind {
	switch {
	case r.Limit != 0 && r.Stop != 0:
		return StopLimit
	case r.Limit != 0:
		return Limit
	case r.Stop != 0:
		return Stop
	}
	return Market
}

// Order is a pending request held by the Book. Good-til-canceled: it survives
// bars until it fills, is canceled, or is rejected for margin.
type Order struct {
	ID    string
	Kind  Kind
	Size  float64
	Limit float64
	Stop  float64
	SL    float64
	TP    float64
	Tag   string

	// fractional records that Size was given as an equity fraction; only
	// fraction-sized orders may be downsized on insufficient margin.
	fractional bool

	placedBar    int
	stopHit      bool // stop-limit: stop condition already satisfied
	triggeredBar int  // bar on which the stop condition fired
}

// IsBuy reports the order's direction.
func (o *Order) IsBuy() bool { return o.Size > 0 }
