// Package metrics exposes Prometheus instrumentation for the optimization
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups the collectors used by the optimization core. A nil
// *Registry disables instrumentation, so library callers that do not run
// the HTTP service pay nothing.
type Registry struct {
	Evaluations        *prometheus.CounterVec
	EvaluationFailures *prometheus.CounterVec
	ConstraintRepairs  *prometheus.CounterVec
	StrategyRuns       *prometheus.CounterVec
	StrategyDuration   *prometheus.HistogramVec
}

// New registers the optimization collectors with the given registerer.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_objective_evaluations_total",
			Help: "Objective evaluator calls, by strategy.",
		}, []string{"strategy"}),
		EvaluationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_objective_evaluation_failures_total",
			Help: "Objective evaluator calls that returned the failure sentinel, by strategy.",
		}, []string{"strategy"}),
		ConstraintRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_constraint_repairs_total",
			Help: "Candidates that required constraint repair before evaluation, by strategy.",
		}, []string{"strategy"}),
		StrategyRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_strategy_runs_total",
			Help: "Completed strategy runs, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		StrategyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_strategy_run_duration_seconds",
			Help:    "Wall-clock duration of strategy runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"strategy"}),
	}
}

// CountEvaluation records one objective evaluation.
func (r *Registry) CountEvaluation(strategy string, failed bool) {
	if r == nil {
		return
	}
	r.Evaluations.WithLabelValues(strategy).Inc()
	if failed {
		r.EvaluationFailures.WithLabelValues(strategy).Inc()
	}
}

// CountRepair records one constraint repair.
func (r *Registry) CountRepair(strategy string) {
	if r == nil {
		return
	}
	r.ConstraintRepairs.WithLabelValues(strategy).Inc()
}

// ObserveRun records the outcome and duration of a strategy run.
func (r *Registry) ObserveRun(strategy, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.StrategyRuns.WithLabelValues(strategy, outcome).Inc()
	r.StrategyDuration.WithLabelValues(strategy).Observe(seconds)
}
