package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/analytics"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest over a CSV bar file",
	Long: `Run replays a bar series against a strategy and prints the result.

Supported strategies:
  - noop: does nothing (baseline)
  - open-once: buys on the first bar and holds
  - sma-cross: fast/slow moving-average crossover with ATR stops
  - breakout: rolling high/low channel breakout via stop orders

Example:
  backtester run --bars data/eurusd_h1.csv --strategy sma-cross --fast 10 --slow 30`,
	RunE: runRun,
}

var (
	runBarsPath   string
	runConfigPath string
	runStrategy   string
	runCash       float64
	runLeverage   float64
	runCommission float64
	runSpread     float64
	runOnClose    bool
	runHedging    bool
	runExclusive  bool
	runFast       int
	runSlow       int
	runRiskPct    float64
	runRR         float64
	runDBPath     string
	runCSVPrefix  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runBarsPath, "bars", "b", "", "path to bar CSV (time,open,high,low,close[,volume]) (required)")
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to YAML/JSON config (flags override)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "sma-cross", "strategy name (noop, open-once, sma-cross, breakout)")

	runCmd.Flags().Float64Var(&runCash, "cash", 10_000, "starting cash")
	runCmd.Flags().Float64Var(&runLeverage, "leverage", 1, "account leverage (1 = cash account)")
	runCmd.Flags().Float64Var(&runCommission, "commission", 0, "relative commission per fill")
	runCmd.Flags().Float64Var(&runSpread, "spread", 0, "relative bid/ask spread")
	runCmd.Flags().BoolVar(&runOnClose, "trade-on-close", false, "fill market orders at the placing bar's close")
	runCmd.Flags().BoolVar(&runHedging, "hedging", false, "keep same-direction trades separate")
	runCmd.Flags().BoolVar(&runExclusive, "exclusive", false, "new directional orders supersede the opposite direction")

	runCmd.Flags().IntVar(&runFast, "fast", 10, "sma-cross: fast period")
	runCmd.Flags().IntVar(&runSlow, "slow", 30, "sma-cross: slow period / breakout: lookback")
	runCmd.Flags().Float64Var(&runRiskPct, "risk", 0.2, "equity fraction per entry")
	runCmd.Flags().Float64Var(&runRR, "rr", 2.0, "sma-cross: take profit as R multiple")

	runCmd.Flags().StringVarP(&runDBPath, "db", "d", "", "journal to this SQLite database")
	runCmd.Flags().StringVar(&runCSVPrefix, "journal-csv", "", "journal to <prefix>_trades.csv and <prefix>_equity.csv")

	runCmd.MarkFlagRequired("bars")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(runConfigPath)
		if err != nil {
			return err
		}
	}

	// Flags override config file values when set.
	if cmd.Flags().Changed("cash") {
		cfg.Broker.Cash = runCash
	}
	if cmd.Flags().Changed("leverage") {
		cfg.Broker.Leverage = runLeverage
	}
	if cmd.Flags().Changed("commission") {
		cfg.Broker.CommissionRate = runCommission
	}
	if cmd.Flags().Changed("spread") {
		cfg.Broker.Spread = runSpread
	}
	if cmd.Flags().Changed("trade-on-close") {
		cfg.Broker.TradeOnClose = runOnClose
	}
	if cmd.Flags().Changed("hedging") {
		cfg.Broker.Hedging = runHedging
	}
	if cmd.Flags().Changed("exclusive") {
		cfg.Broker.ExclusiveOrders = runExclusive
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy.Name = runStrategy
	}
	if cmd.Flags().Changed("fast") {
		cfg.Strategy.Fast = runFast
	}
	if cmd.Flags().Changed("slow") {
		cfg.Strategy.Slow = runSlow
	}
	if cmd.Flags().Changed("risk") {
		cfg.Strategy.RiskPct = runRiskPct
	}
	if cmd.Flags().Changed("rr") {
		cfg.Strategy.RR = runRR
	}

	simCfg, err := cfg.SimConfig()
	if err != nil {
		return err
	}

	series, err := market.LoadCSV(runBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	jrnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	strat, err := strategies.ByName(cfg.Strategy.Name, cfg.Strategy.Fast, cfg.Strategy.Slow,
		cfg.Strategy.RiskPct, cfg.Strategy.RR)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	eng, err := backtest.New(series, simCfg, strat, jrnl)
	if err != nil {
		return err
	}

	fmt.Printf("Running %s over %d bars from %s\n\n", strat.Name(), series.Len(), runBarsPath)

	result, err := eng.Run(context.Background())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	result.Print(os.Stdout)
	fmt.Println()
	analytics.Analyze(result.Trades, result.EquityCurve, simCfg.Cash).Print(os.Stdout)

	return nil
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	// CLI flags take precedence over the config file's journal section.
	if runDBPath != "" {
		return journal.NewSQLite(runDBPath)
	}
	if runCSVPrefix != "" {
		return journal.NewCSV(runCSVPrefix+"_trades.csv", runCSVPrefix+"_equity.csv")
	}

	switch cfg.Journal.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	}
	return journal.Nop{}, nil
}
