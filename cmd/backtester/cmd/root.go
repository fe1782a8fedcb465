package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "A bar-replay backtesting engine for trading strategies",
	Long: `Backtester replays historical OHLC bars against a trading strategy and
produces a faithful account of what would have happened: which orders filled,
at what price, with what resulting cash, position, and equity.

It provides tools for:
  - Backtesting strategies over CSV bar data
  - Market, limit, stop, and stop-limit orders with SL/TP attachments
  - Margin accounting with forced liquidation
  - Trade and equity journaling to CSV or SQLite
  - Parallel parameter sweeps`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
