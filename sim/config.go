package sim

import "fmt"

// TiePolicy decides which contingent exit wins when a single bar's range
// covers both the stop-loss and the take-profit of the same trade.
type TiePolicy int8

const (
	// StopFirst assumes the worse-for-the-holder path through the bar: the
	// stop-loss executes. This is the conservative default.
	StopFirst TiePolicy = iota
	// TakeFirst assumes the favorable path: the take-profit executes.
	TakeFirst
)

// Config holds all broker-level simulation settings. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	Cash             float64   // starting cash balance
	CommissionRate   float64   // fraction of fill notional, charged per fill
	CommissionFixed  float64   // absolute amount per unit, charged per fill
	Spread           float64   // relative bid/ask widening, split across sides
	Slippage         float64   // relative price adjustment against the order
	Leverage         float64   // 1 = cash account
	TradeOnClose     bool      // market orders fill at the placing bar's close
	Hedging          bool      // keep same-direction trades separate
	ExclusiveOrders  bool      // new direction supersedes the opposite one
	FractionalSizing bool      // allow non-integer trade units
	TiePolicy        TiePolicy // same-bar SL/TP resolution
}

func DefaultConfig() Config {
	return Config{
		Cash:     10_000,
		Leverage: 1,
	}
}

func (c Config) Validate() error {
	if c.Cash <= 0 {
		return fmt.Errorf("config: cash must be positive, got %v", c.Cash)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("config: leverage must be >= 1, got %v", c.Leverage)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("config: commission rate must be in [0,1), got %v", c.CommissionRate)
	}
	if c.CommissionFixed < 0 {
		return fmt.Errorf("config: fixed commission must be >= 0, got %v", c.CommissionFixed)
	}
	if c.Spread < 0 || c.Spread >= 1 {
		return fmt.Errorf("config: spread must be in [0,1), got %v", c.Spread)
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return fmt.Errorf("config: slippage must be in [0,1), got %v", c.Slippage)
	}
	if c.TiePolicy != StopFirst && c.TiePolicy != TakeFirst {
		return fmt.Errorf("config: unknown tie policy %d", c.TiePolicy)
	}
	return nil
}
