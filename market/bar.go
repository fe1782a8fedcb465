package market

import "time"

// Bar is one OHLC(V) sample for a fixed interval. Bars are value types and
// never mutated after ingestion.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
