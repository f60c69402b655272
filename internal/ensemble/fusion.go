package ensemble

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// Provenance values for the fused answer.
const (
	ProvenanceFusedAverage = "fused_average"
)

// convergedWeightBoost favors assignments from runs whose monitor
// detected convergence when averaging.
const convergedWeightBoost = 1.2

// ConvergenceInfo summarizes agreement across the successful runs.
type ConvergenceInfo struct {
	// ConvergedCount is how many successful runs converged.
	ConvergedCount int `json:"converged_count"`
	// ScoreConsistency is 1 minus the relative spread of best scores;
	// near 1 means the strategies agree.
	ScoreConsistency float64 `json:"score_consistency"`
	// Confidence is the converged fraction of all attempted runs.
	Confidence float64 `json:"confidence"`
}

// Result is the fused outcome of an ensemble run.
type Result struct {
	BestAssignment params.Assignment `json:"best_assignment"`
	BestScore      float64           `json:"best_score"`
	// Provenance names the strategy that produced the winner, or
	// ProvenanceFusedAverage.
	Provenance string `json:"provenance"`

	StrategyResults map[string]*optimization.Result `json:"strategy_results"`
	// Diagnostics holds the per-strategy monitor analysis.
	Diagnostics map[string]monitor.Diagnostics `json:"diagnostics,omitempty"`
	// Failures maps failed strategies to their error text.
	Failures   map[string]string `json:"failures,omitempty"`
	Allocation map[string]int    `json:"allocation"`

	Convergence ConvergenceInfo `json:"convergence"`
	Duration    time.Duration   `json:"duration"`
}

// fuse combines the per-strategy outcomes: the best single result
// competes against a score-weighted average assignment, which is
// evaluated once. Failed strategies are excluded; all failing is fatal.
func (o *Optimizer) fuse(ctx context.Context, space params.Space, outcomes []runOutcome, opts Options) (*Result, error) {
	result := &Result{
		StrategyResults: make(map[string]*optimization.Result),
		Diagnostics:     make(map[string]monitor.Diagnostics),
		Failures:        make(map[string]string),
	}

	var succeeded []runOutcome
	for _, out := range outcomes {
		if out.err != nil {
			result.Failures[out.name] = out.err.Error()
			continue
		}
		result.StrategyResults[out.name] = out.result
		result.Diagnostics[out.name] = out.diagnostics
		if out.result.Succeeded() {
			succeeded = append(succeeded, out)
		} else {
			result.Failures[out.name] = "no successful evaluation"
		}
	}

	if len(succeeded) == 0 {
		return nil, ErrAllStrategiesFailed
	}

	best := succeeded[0]
	for _, out := range succeeded[1:] {
		if out.result.BestScore > best.result.BestScore {
			best = out
		}
	}
	result.BestAssignment = best.result.BestAssignment
	result.BestScore = best.result.BestScore
	result.Provenance = best.name

	if len(succeeded) > 1 {
		averaged := weightedAverage(succeeded)
		score := o.scoreOnce(ctx, space, averaged, opts)
		if score > result.BestScore {
			result.BestAssignment = averaged
			result.BestScore = score
			result.Provenance = ProvenanceFusedAverage
			o.logger.Info("fused average won",
				zap.Float64("score", score))
		}
	}

	result.Convergence = convergenceInfo(succeeded, len(outcomes))
	return result, nil
}

// weightedAverage blends the best assignments of the successful runs,
// weighting each by its best score (boosted when that run converged).
// Scores are shifted to be positive so losing runs still contribute.
func weightedAverage(succeeded []runOutcome) params.Assignment {
	minScore := math.Inf(1)
	for _, out := range succeeded {
		if out.result.BestScore < minScore {
			minScore = out.result.BestScore
		}
	}

	sums := make(map[string]float64)
	weights := make(map[string]float64)
	for _, out := range succeeded {
		w := out.result.BestScore - minScore + 1e-6
		if out.converged {
			w *= convergedWeightBoost
		}
		for name, value := range out.result.BestAssignment.Flatten() {
			sums[name] += w * value
			weights[name] += w
		}
	}

	flat := make(map[string]float64, len(sums))
	for name, sum := range sums {
		flat[name] = sum / weights[name]
	}
	return params.FromFlat(flat)
}

// scoreOnce evaluates one assignment through the standard candidate
// pipeline, spending a single extra evaluation.
func (o *Optimizer) scoreOnce(ctx context.Context, space params.Space, candidate params.Assignment, opts Options) float64 {
	cfg := optimization.SearchConfig{
		Evaluator:     o.evaluator,
		Metric:        o.metric,
		Space:         space,
		Budget:        1,
		Constraints:   opts.constraintsOr(o.constraints),
		Realism:       opts.realismOr(o.realism),
		PenaltyWeight: opts.PenaltyWeight,
		Metrics:       o.metrics,
	}
	pipe := optimization.NewPipeline(ProvenanceFusedAverage, &cfg, monitor.New(0, 0))
	return pipe.Evaluate(ctx, candidate, monitor.Aux{})
}

// convergenceInfo computes cross-strategy agreement statistics.
func convergenceInfo(succeeded []runOutcome, attempted int) ConvergenceInfo {
	info := ConvergenceInfo{}
	if len(succeeded) == 0 || attempted == 0 {
		return info
	}

	sum := 0.0
	for _, out := range succeeded {
		if out.converged {
			info.ConvergedCount++
		}
		sum += out.result.BestScore
	}
	avg := sum / float64(len(succeeded))

	variance := 0.0
	for _, out := range succeeded {
		d := out.result.BestScore - avg
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(succeeded)))

	consistency := 1 - std/(math.Abs(avg)+1e-6)
	if consistency < 0 {
		consistency = 0
	}
	info.ScoreConsistency = consistency
	info.Confidence = float64(info.ConvergedCount) / float64(attempted)
	return info
}
