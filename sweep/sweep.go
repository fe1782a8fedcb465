// Package sweep runs the same backtest across a grid of strategy parameters.
// Runs share nothing: each gets its own clock, book, ledger, and account, so
// they execute on separate workers with no synchronization beyond collecting
// final results. Cancellation is run-granular.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rustyeddy/backtester/analytics"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Params is one point of the parameter grid.
type Params map[string]float64

// Range describes one swept parameter.
type Range struct {
	Name  string
	Min   float64
	Max   float64 // inclusive
	Step  float64
	IsInt bool
}

// Factory builds a fresh strategy for one parameter combination. It must not
// share mutable state between the strategies it returns.
type Factory func(Params) (backtest.Strategy, error)

// Score ranks a finished run; higher is better.
type Score func(analytics.Metrics) float64

// Config controls the sweep.
type Config struct {
	Sim     sim.Config
	Workers int   // defaults to GOMAXPROCS
	Score   Score // defaults to net profit
}

// Result is one run's outcome. Err is set when the run failed; failed runs
// sort last.
type Result struct {
	Params  Params
	Run     backtest.Result
	Metrics analytics.Metrics
	Score   float64
	Err     error
}

// Grid expands the ranges into every combination.
func Grid(ranges []Range) []Params {
	combos := []Params{{}}
	for _, r := range ranges {
		var next []Params
		for v := r.Min; v <= r.Max+1e-9; v += r.Step {
			val := v
			if r.IsInt {
				val = float64(int(v))
			}
			for _, c := range combos {
				p := Params{}
				for k, cv := range c {
					p[k] = cv
				}
				p[r.Name] = val
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos
}

// Run executes one backtest per parameter combination over a bounded worker
// pool and returns results sorted by score, best first.
func Run(ctx context.Context, series *market.Series, cfg Config, ranges []Range, factory Factory) ([]Result, error) {
	combos := Grid(ranges)
	if len(combos) == 0 {
		return nil, fmt.Errorf("sweep: empty parameter grid")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	score := cfg.Score
	if score == nil {
		score = func(m analytics.Metrics) float64 { return m.NetProfit }
	}

	jobs := make(chan Params)
	results := make(chan Result, len(combos))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- runOne(ctx, series, cfg.Sim, p, factory, score)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range combos {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(combos))
	for r := range results {
		out = append(out, r)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	sort.Slice(out, func(i, j int) bool {
		if (out[i].Err == nil) != (out[j].Err == nil) {
			return out[i].Err == nil
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func runOne(ctx context.Context, series *market.Series, simCfg sim.Config, p Params, factory Factory, score Score) Result {
	res := Result{Params: p}

	strat, err := factory(p)
	if err != nil {
		res.Err = fmt.Errorf("factory: %w", err)
		return res
	}

	eng, err := backtest.New(series, simCfg, strat, nil)
	if err != nil {
		res.Err = err
		return res
	}

	run, err := eng.Run(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	res.Run = run
	res.Metrics = analytics.Analyze(run.Trades, run.EquityCurve, simCfg.Cash)
	res.Score = score(res.Metrics)
	return res
}
