package optimization

import (
	"context"
	"time"

	"github.com/fincast/fincast/internal/constraints"
	"github.com/fincast/fincast/internal/metrics"
	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
)

// DefaultPenaltyWeight scales the realism penalty subtracted from raw scores.
const DefaultPenaltyWeight = 0.1

// ProgressFunc reports coarse-grained progress. It must return quickly:
// strategies invoke it synchronously and never block on anything else.
type ProgressFunc func(fraction float64, status string)

// SearchConfig is the read-only input to one strategy run.
type SearchConfig struct {
	// Evaluator scores candidates; see the Evaluator contract.
	Evaluator Evaluator
	// Metric names the objective metric the evaluator aggregates.
	Metric string
	// Space is the parameter space to search.
	Space params.Space
	// Budget caps the number of objective evaluations.
	Budget int
	// Hyper carries strategy-specific tuning; zero values mean defaults.
	Hyper Hyperparameters
	// Constraints repairs candidates before evaluation. Optional.
	Constraints *constraints.Handler
	// Realism adjusts candidates and scores their plausibility. Optional.
	Realism *realism.Adjuster
	// PenaltyWeight scales the realism penalty; zero means the default.
	PenaltyWeight float64
	// Progress receives coarse progress updates. Optional.
	Progress ProgressFunc
	// Metrics instruments evaluations. Optional.
	Metrics *metrics.Registry
}

// ReportProgress invokes the progress callback if one is set.
func (cfg *SearchConfig) ReportProgress(fraction float64, status string) {
	if cfg.Progress != nil {
		cfg.Progress(fraction, status)
	}
}

func (cfg *SearchConfig) penaltyWeight() float64 {
	if cfg.PenaltyWeight > 0 {
		return cfg.PenaltyWeight
	}
	return DefaultPenaltyWeight
}

// Pipeline runs the shared per-candidate sequence (repair, penalty,
// realism adjustment, evaluation, monitor report) and accumulates the
// iteration counter, trace and best-so-far for one strategy run. It is an
// explicit accumulator owned by the run; strategies pass it into their
// loops instead of closing over mutable counters.
type Pipeline struct {
	strategy string
	cfg      *SearchConfig
	mon      *monitor.Monitor
	started  time.Time

	iteration int
	trace     []EvaluationRecord

	best      params.Assignment
	bestScore float64
}

// NewPipeline prepares the evaluation pipeline for one strategy run.
func NewPipeline(strategy string, cfg *SearchConfig, mon *monitor.Monitor) *Pipeline {
	return &Pipeline{
		strategy:  strategy,
		cfg:       cfg,
		mon:       mon,
		started:   time.Now(),
		bestScore: FailedScore,
		trace:     make([]EvaluationRecord, 0, cfg.Budget),
	}
}

// Evaluate pushes one candidate through the pipeline and returns its
// adjusted score. The candidate itself is never mutated; repair and
// adjustment work on copies. The realism penalty is computed on the
// repaired, pre-adjustment assignment.
func (p *Pipeline) Evaluate(ctx context.Context, candidate params.Assignment, aux monitor.Aux) float64 {
	repaired := candidate
	if p.cfg.Constraints != nil {
		if valid, _ := p.cfg.Constraints.Validate(candidate); !valid {
			repaired = p.cfg.Constraints.Repair(candidate)
			p.cfg.Metrics.CountRepair(p.strategy)
		}
	}

	penalty := 0.0
	evaluated := repaired
	if p.cfg.Realism != nil {
		penalty = p.cfg.Realism.Penalty(repaired)
		evaluated = p.cfg.Realism.Adjust(repaired)
	}

	raw := p.cfg.Evaluator.Evaluate(ctx, evaluated.Clone(), p.cfg.Metric)
	failed := raw <= FailedScore

	adjusted := FailedScore
	if !failed {
		adjusted = raw - p.cfg.penaltyWeight()*penalty
	}

	p.iteration++
	p.cfg.Metrics.CountEvaluation(p.strategy, failed)

	if !failed && (p.best == nil || adjusted > p.bestScore) {
		p.best = repaired.Clone()
		p.bestScore = adjusted
	}

	p.trace = append(p.trace, EvaluationRecord{
		Iteration:       p.iteration,
		Assignment:      repaired.Flatten(),
		RawScore:        raw,
		Penalty:         penalty,
		AdjustedScore:   adjusted,
		Elapsed:         time.Since(p.started),
		Diversity:       aux.Diversity,
		ExplorationRate: aux.ExplorationRate,
		Failed:          failed,
	})

	p.mon.Record(p.iteration, adjusted, p.bestScore, aux)

	return adjusted
}

// ShouldStop reports whether the run should end: either the monitor
// suggests an early stop or the evaluation budget is spent.
func (p *Pipeline) ShouldStop() bool {
	return p.mon.ShouldStopEarly() || p.iteration >= p.cfg.Budget
}

// BudgetExhausted reports whether the evaluation budget is spent.
func (p *Pipeline) BudgetExhausted() bool {
	return p.iteration >= p.cfg.Budget
}

// Iterations returns the number of evaluations performed so far.
func (p *Pipeline) Iterations() int {
	return p.iteration
}

// Best returns the best assignment and adjusted score found so far.
func (p *Pipeline) Best() (params.Assignment, float64) {
	return p.best, p.bestScore
}

// Result assembles the strategy result from the accumulated state.
func (p *Pipeline) Result() *Result {
	return &Result{
		Strategy:       p.strategy,
		BestAssignment: p.best,
		BestScore:      p.bestScore,
		Duration:       time.Since(p.started),
		Iterations:     p.iteration,
		Convergence:    p.mon.Status(),
		Trace:          p.trace,
	}
}
