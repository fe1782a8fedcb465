// Package strategies ships the built-in strategy collaborators used by the
// CLI and tests. They exist to exercise the order surface; none of them is
// investment advice.
package strategies

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
)

// ByName builds a registered strategy from its CLI name and parameters.
func ByName(name string, fast, slow int, riskPct, rr float64) (backtest.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noop", "none":
		return Noop{}, nil
	case "open-once":
		return &OpenOnce{Size: riskPct}, nil
	case "sma-cross":
		return NewSMACross(SMACrossConfig{
			Fast:    fast,
			Slow:    slow,
			RiskPct: riskPct,
			RR:      rr,
		}), nil
	case "breakout":
		return NewBreakout(BreakoutConfig{
			Lookback: slow,
			RiskPct:  riskPct,
		}), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}
