// Package ensemble runs several search strategies against one objective
// and fuses their results into a single answer.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fincast/fincast/internal/constraints"
	"github.com/fincast/fincast/internal/metrics"
	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/optimization/genetic"
	"github.com/fincast/fincast/internal/optimization/grid"
	"github.com/fincast/fincast/internal/optimization/surrogate"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
	"github.com/fincast/fincast/internal/selector"
)

// ErrAllStrategiesFailed is returned when no strategy produced a usable
// result.
var ErrAllStrategiesFailed = errors.New("all strategies failed")

// DefaultMaxWorkers bounds concurrent strategy runs.
const DefaultMaxWorkers = 3

// Options configures an ensemble run.
type Options struct {
	// Policy selects the budget allocation scheme.
	Policy Policy
	// Parallel runs allocated strategies concurrently. It is ignored when
	// the evaluator is not reentrant.
	Parallel bool
	// MaxWorkers bounds concurrency; zero means DefaultMaxWorkers.
	MaxWorkers int
	// ReentrantEvaluator declares that the evaluator tolerates concurrent
	// calls. When false the ensemble always runs sequentially.
	ReentrantEvaluator bool
	// Preferences bias the strategy ranking.
	Preferences selector.Preferences
	// Seed makes stochastic strategies reproducible when non-zero.
	Seed int64
	// PenaltyWeight scales the realism penalty; zero means the default.
	PenaltyWeight float64
	// Constraints overrides the optimizer's constraint handler for this
	// run. Optional; useful when constraints depend on the space.
	Constraints *constraints.Handler
	// Realism overrides the optimizer's realism adjuster for this run.
	Realism *realism.Adjuster
	// Progress receives coarse progress updates. Optional.
	Progress optimization.ProgressFunc
}

func (opts *Options) constraintsOr(fallback *constraints.Handler) *constraints.Handler {
	if opts.Constraints != nil {
		return opts.Constraints
	}
	return fallback
}

func (opts *Options) realismOr(fallback *realism.Adjuster) *realism.Adjuster {
	if opts.Realism != nil {
		return opts.Realism
	}
	return fallback
}

// Optimizer coordinates strategy selection, budget allocation, parallel
// execution and result fusion.
type Optimizer struct {
	evaluator   optimization.Evaluator
	metric      string
	constraints *constraints.Handler
	realism     *realism.Adjuster
	metrics     *metrics.Registry
	logger      *zap.Logger

	strategies map[string]optimization.Strategy
}

// New creates an ensemble optimizer over the given evaluator and
// objective metric. The three built-in strategies are registered; nil
// handler, adjuster, registry and logger are all allowed.
func New(evaluator optimization.Evaluator, metric string, handler *constraints.Handler, adjuster *realism.Adjuster, reg *metrics.Registry, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		evaluator:   evaluator,
		metric:      metric,
		constraints: handler,
		realism:     adjuster,
		metrics:     reg,
		logger:      logger.Named("ensemble"),
		strategies: map[string]optimization.Strategy{
			"grid_search": grid.New(),
			"surrogate":   surrogate.New(),
			"genetic":     genetic.New(),
		},
	}
}

// Register adds or replaces a strategy. Unknown strategies recommended
// by the selector are skipped at run time.
func (o *Optimizer) Register(s optimization.Strategy) {
	o.strategies[s.Name()] = s
}

// runOutcome is the per-strategy result envelope collected by the run.
type runOutcome struct {
	name        string
	result      *optimization.Result
	converged   bool
	diagnostics monitor.Diagnostics
	err         error
}

// Optimize allocates the budget, runs the allocated strategies and
// fuses their results.
func (o *Optimizer) Optimize(ctx context.Context, space params.Space, budget int, opts Options) (*Result, error) {
	started := time.Now()

	if err := space.Validate(); err != nil {
		return nil, optimization.WrapError(err, "ensemble", "Optimize", "invalid parameter space")
	}
	if budget <= 0 {
		return nil, optimization.NewError("ensemble", "Optimize", "budget must be positive")
	}

	recs := selector.Recommend(space, budget, opts.Preferences)
	allocation := allocate(opts.Policy, recs, budget)

	hyperByName := make(map[string]optimization.Hyperparameters, len(recs))
	for _, rec := range recs {
		hp := rec.Hyper
		hp.Seed = opts.Seed
		hyperByName[rec.Strategy] = hp
	}

	outcomes := o.execute(ctx, space, allocation, hyperByName, opts)

	result, err := o.fuse(ctx, space, outcomes, opts)
	if err != nil {
		return nil, err
	}
	result.Allocation = allocation
	result.Duration = time.Since(started)
	return result, nil
}

// execute runs every allocated strategy, concurrently when allowed.
// A panic inside a strategy is captured as that strategy's failure.
func (o *Optimizer) execute(ctx context.Context, space params.Space, allocation map[string]int, hyper map[string]optimization.Hyperparameters, opts Options) []runOutcome {
	parallel := opts.Parallel && opts.ReentrantEvaluator && len(allocation) > 1
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	names := make([]string, 0, len(allocation))
	for name := range allocation {
		names = append(names, name)
	}
	// Deterministic run order for the sequential path.
	sort.Strings(names)

	outcomes := make([]runOutcome, len(names))
	if !parallel {
		for i, name := range names {
			outcomes[i] = o.runOne(ctx, space, name, allocation[name], hyper[name], opts)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = o.runOne(ctx, space, name, allocation[name], hyper[name], opts)
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

// runOne executes a single strategy with its own monitor. The monitor's
// patience scales with the allocated slice so short runs are not starved
// by the global default.
func (o *Optimizer) runOne(ctx context.Context, space params.Space, name string, slice int, hyper optimization.Hyperparameters, opts Options) (out runOutcome) {
	out.name = name
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = optimization.NewErrorf("ensemble", "runOne", "strategy %s panicked: %v", name, r)
			o.logger.Warn("strategy panicked",
				zap.String("strategy", name),
				zap.Any("panic", r))
			o.metrics.ObserveRun(name, "panic", time.Since(started).Seconds())
		}
	}()

	strategy, ok := o.strategies[name]
	if !ok {
		out.err = optimization.NewErrorf("ensemble", "runOne", "unknown strategy %s", name)
		return out
	}

	patience := slice / 10
	if patience < 5 {
		patience = 5
	}
	mon := monitor.New(patience, 0)

	cfg := optimization.SearchConfig{
		Evaluator:     o.evaluator,
		Metric:        o.metric,
		Space:         space,
		Budget:        slice,
		Hyper:         hyper,
		Constraints:   opts.constraintsOr(o.constraints),
		Realism:       opts.realismOr(o.realism),
		PenaltyWeight: opts.PenaltyWeight,
		Metrics:       o.metrics,
		Progress: func(fraction float64, status string) {
			if opts.Progress != nil {
				opts.Progress(fraction, fmt.Sprintf("%s: %s", name, status))
			}
		},
	}

	result, err := strategy.Search(ctx, cfg, mon)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		o.logger.Warn("strategy failed",
			zap.String("strategy", name),
			zap.Error(err))
		o.metrics.ObserveRun(name, "error", elapsed)
		out.err = err
		return out
	}

	o.logger.Info("strategy finished",
		zap.String("strategy", name),
		zap.Int("iterations", result.Iterations),
		zap.Float64("best_score", result.BestScore),
		zap.Bool("converged", mon.Converged()))
	o.metrics.ObserveRun(name, "ok", elapsed)

	out.result = result
	out.converged = mon.Converged()
	out.diagnostics = mon.Diagnostics()
	return out
}
