package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/rustyeddy/backtester/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep sma-cross parameters over a CSV bar file",
	Long: `Sweep runs one independent backtest per fast/slow combination on a
worker pool and prints the best results by net profit. Runs share nothing;
only final results are aggregated.

Example:
  backtester sweep --bars data/eurusd_h1.csv --fast-min 5 --fast-max 20 --slow-min 20 --slow-max 60`,
	RunE: runSweep,
}

var (
	swBarsPath string
	swCash     float64
	swLeverage float64
	swRiskPct  float64
	swFastMin  int
	swFastMax  int
	swFastStep int
	swSlowMin  int
	swSlowMax  int
	swSlowStep int
	swWorkers  int
	swTop      int
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVarP(&swBarsPath, "bars", "b", "", "path to bar CSV (required)")
	sweepCmd.Flags().Float64Var(&swCash, "cash", 10_000, "starting cash")
	sweepCmd.Flags().Float64Var(&swLeverage, "leverage", 1, "account leverage")
	sweepCmd.Flags().Float64Var(&swRiskPct, "risk", 0.2, "equity fraction per entry")

	sweepCmd.Flags().IntVar(&swFastMin, "fast-min", 5, "fast period range start")
	sweepCmd.Flags().IntVar(&swFastMax, "fast-max", 20, "fast period range end (inclusive)")
	sweepCmd.Flags().IntVar(&swFastStep, "fast-step", 5, "fast period step")
	sweepCmd.Flags().IntVar(&swSlowMin, "slow-min", 20, "slow period range start")
	sweepCmd.Flags().IntVar(&swSlowMax, "slow-max", 60, "slow period range end (inclusive)")
	sweepCmd.Flags().IntVar(&swSlowStep, "slow-step", 10, "slow period step")

	sweepCmd.Flags().IntVar(&swWorkers, "workers", 0, "worker pool size (0 = GOMAXPROCS)")
	sweepCmd.Flags().IntVar(&swTop, "top", 10, "number of results to print")

	sweepCmd.MarkFlagRequired("bars")
}

func runSweep(cmd *cobra.Command, args []string) error {
	series, err := market.LoadCSV(swBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	simCfg := sim.DefaultConfig()
	simCfg.Cash = swCash
	simCfg.Leverage = swLeverage

	ranges := []sweep.Range{
		{Name: "fast", Min: float64(swFastMin), Max: float64(swFastMax), Step: float64(swFastStep), IsInt: true},
		{Name: "slow", Min: float64(swSlowMin), Max: float64(swSlowMax), Step: float64(swSlowStep), IsInt: true},
	}

	factory := func(p sweep.Params) (backtest.Strategy, error) {
		fast, slow := int(p["fast"]), int(p["slow"])
		if fast >= slow {
			return nil, fmt.Errorf("fast %d >= slow %d", fast, slow)
		}
		return strategies.NewSMACross(strategies.SMACrossConfig{
			Fast:    fast,
			Slow:    slow,
			RiskPct: swRiskPct,
		}), nil
	}

	results, err := sweep.Run(context.Background(), series, sweep.Config{
		Sim:     simCfg,
		Workers: swWorkers,
	}, ranges, factory)
	if err != nil {
		return err
	}

	fmt.Printf("%-8s %-8s %10s %8s %8s %10s\n", "fast", "slow", "net", "trades", "win%", "maxDD%")
	shown := 0
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if shown >= swTop {
			break
		}
		fmt.Printf("%-8d %-8d %10.2f %8d %7.1f%% %9.1f%%\n",
			int(r.Params["fast"]), int(r.Params["slow"]),
			r.Metrics.NetProfit, r.Metrics.TotalTrades,
			r.Metrics.WinRate*100, r.Metrics.MaxDrawdown*100)
		shown++
	}
	if shown == 0 {
		fmt.Println("no successful runs")
	}

	return nil
}
