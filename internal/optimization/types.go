// Package optimization defines the contract shared by every search
// strategy: the objective evaluator boundary, the candidate evaluation
// pipeline, evaluation records and strategy results.
package optimization

import (
	"context"
	"math"
	"time"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/params"
)

// FailedScore is the sentinel returned by the evaluator boundary when a
// candidate cannot be scored. It loses every best-score comparison, so a
// failed evaluation is rejected without propagating an error through the
// search loop.
const FailedScore = -math.MaxFloat64

// Evaluator scores a parameter assignment against a named objective
// metric, aggregated over the evaluator's multi-period output. A failure
// is reported as FailedScore, never as an error. Implementations used
// with parallel execution must be safe for concurrent calls; each call
// receives its own assignment copy.
type Evaluator interface {
	Evaluate(ctx context.Context, overrides params.Assignment, metric string) float64
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, overrides params.Assignment, metric string) float64

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, overrides params.Assignment, metric string) float64 {
	return f(ctx, overrides, metric)
}

// Hyperparameters carries per-strategy tuning knobs. Each strategy reads
// only the fields relevant to it; the Algorithm Selector fills them in.
type Hyperparameters struct {
	// Grid search
	PointsPerDim int `json:"points_per_dim,omitempty" yaml:"points_per_dim,omitempty"`

	// Surrogate-guided search
	NIterations    int     `json:"n_iterations,omitempty" yaml:"n_iterations,omitempty"`
	NInitialPoints int     `json:"n_initial_points,omitempty" yaml:"n_initial_points,omitempty"`
	Xi             float64 `json:"xi,omitempty" yaml:"xi,omitempty"`

	// Population-based search
	PopulationSize int     `json:"population_size,omitempty" yaml:"population_size,omitempty"`
	NGenerations   int     `json:"n_generations,omitempty" yaml:"n_generations,omitempty"`
	MutationRate   float64 `json:"mutation_rate,omitempty" yaml:"mutation_rate,omitempty"`
	CrossoverProb  float64 `json:"crossover_prob,omitempty" yaml:"crossover_prob,omitempty"`

	// Seed makes stochastic strategies reproducible when non-zero.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Strategy is the contract every search implementation satisfies.
type Strategy interface {
	// Name identifies the strategy in results, metrics and logs.
	Name() string

	// Search spends up to cfg.Budget objective evaluations looking for the
	// assignment that maximizes the adjusted score. It polls the monitor
	// after every iteration and may return early with a partial trace.
	Search(ctx context.Context, cfg SearchConfig, mon *monitor.Monitor) (*Result, error)
}

// EvaluationRecord captures one candidate evaluation. Records are
// immutable once created and strictly iteration-ordered within a run.
type EvaluationRecord struct {
	Iteration       int                `json:"iteration"`
	Assignment      map[string]float64 `json:"assignment"`
	RawScore        float64            `json:"raw_score"`
	Penalty         float64            `json:"penalty"`
	AdjustedScore   float64            `json:"adjusted_score"`
	Elapsed         time.Duration      `json:"elapsed"`
	Diversity       float64            `json:"diversity,omitempty"`
	ExplorationRate float64            `json:"exploration_rate,omitempty"`
	Failed          bool               `json:"failed,omitempty"`
}

// Result is the outcome of one strategy run.
type Result struct {
	Strategy       string                 `json:"strategy"`
	BestAssignment params.Assignment      `json:"best_assignment"`
	BestScore      float64                `json:"best_score"`
	Duration       time.Duration          `json:"duration"`
	Iterations     int                    `json:"iterations"`
	Convergence    monitor.Status         `json:"convergence"`
	Trace          []EvaluationRecord     `json:"trace,omitempty"`
}

// Succeeded reports whether the run produced a usable best assignment.
func (r *Result) Succeeded() bool {
	return r != nil && r.BestAssignment != nil && r.BestScore > FailedScore
}
