// Package analysis quantifies how trustworthy an optimization result is:
// Monte Carlo robustness under parameter uncertainty, one-at-a-time
// sensitivity sweeps and named business scenarios, all spending extra
// evaluator calls outside any search budget.
package analysis

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// Defaults for the Monte Carlo phase.
const (
	DefaultSamples    = 1000
	DefaultConfidence = 0.95
)

// Risk levels, ordered from most to least stable.
const (
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
	RiskExtreme = "extreme"
)

// Risk banding over the combined coefficient-of-variation and
// performance-drop score.
const (
	riskLowThreshold    = 0.05
	riskMediumThreshold = 0.15
	riskHighThreshold   = 0.30
)

// Default relative uncertainty by identifier class.
const (
	priceUncertainty  = 0.20
	shareUncertainty  = 0.10
	volumeUncertainty = 0.25
	otherUncertainty  = 0.15
)

// RobustnessConfig tunes one analysis run.
type RobustnessConfig struct {
	// Samples is the Monte Carlo sample count; zero means DefaultSamples.
	Samples int `json:"samples,omitempty" yaml:"samples,omitempty"`
	// Confidence sets the reported interval; zero means DefaultConfidence.
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	// Uncertainty overrides the relative perturbation range per
	// identifier. Missing identifiers get a class-based default.
	Uncertainty map[string]float64 `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"`
	// Scenarios replaces the default optimistic/pessimistic/market set.
	Scenarios []Scenario `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
	// Seed makes the perturbations reproducible when non-zero.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Scenario is a named set of overrides applied on top of the analyzed
// assignment.
type Scenario struct {
	Name      string             `json:"name" yaml:"name"`
	Overrides map[string]float64 `json:"overrides" yaml:"overrides"`
}

// ScenarioOutcome is one evaluated scenario.
type ScenarioOutcome struct {
	Name        string             `json:"name"`
	Overrides   map[string]float64 `json:"overrides"`
	Performance float64            `json:"performance"`
	Failed      bool               `json:"failed,omitempty"`
}

// RobustnessResult summarizes how an assignment behaves when its
// parameters are perturbed within their uncertainty ranges.
type RobustnessResult struct {
	BasePerformance float64 `json:"base_performance"`
	MeanPerformance float64 `json:"mean_performance"`
	StdPerformance  float64 `json:"std_performance"`
	WorstCase       float64 `json:"worst_case"`
	BestCase        float64 `json:"best_case"`
	ConfidenceLow   float64 `json:"confidence_low"`
	ConfidenceHigh  float64 `json:"confidence_high"`
	// FailureCount is how many perturbed samples the evaluator rejected;
	// they are excluded from the statistics above.
	FailureCount int    `json:"failure_count,omitempty"`
	RiskLevel    string `json:"risk_level"`
	// Sensitivity maps each identifier to its elasticity: relative
	// performance change per unit of relative parameter change.
	Sensitivity map[string]float64 `json:"sensitivity"`
	Scenarios   []ScenarioOutcome  `json:"scenarios"`
}

// RobustnessAnalyzer perturbs a found optimum and measures how stable
// its performance is.
type RobustnessAnalyzer struct {
	evaluator optimization.Evaluator
	metric    string
	logger    *zap.Logger
}

// NewRobustnessAnalyzer creates an analyzer over the given evaluator and
// objective metric. A nil logger is allowed.
func NewRobustnessAnalyzer(evaluator optimization.Evaluator, metric string, logger *zap.Logger) *RobustnessAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobustnessAnalyzer{
		evaluator: evaluator,
		metric:    metric,
		logger:    logger.Named("robustness"),
	}
}

// Analyze runs the Monte Carlo simulation, the per-parameter elasticity
// estimates and the scenario evaluations for one assignment.
func (ra *RobustnessAnalyzer) Analyze(ctx context.Context, best params.Assignment, cfg RobustnessConfig) (*RobustnessResult, error) {
	const op = "Analyze"

	flat := best.Flatten()
	if len(flat) == 0 {
		return nil, optimization.NewError("robustness", op, "empty assignment")
	}

	base := ra.evaluator.Evaluate(ctx, best, ra.metric)
	if base <= optimization.FailedScore {
		return nil, optimization.NewError("robustness", op, "baseline evaluation failed")
	}

	samples := cfg.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	confidence := cfg.Confidence
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidence
	}
	uncertainty := make(map[string]float64, len(flat))
	for name := range flat {
		if u, ok := cfg.Uncertainty[name]; ok && u > 0 {
			uncertainty[name] = u
		} else {
			uncertainty[name] = defaultUncertainty(name)
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	scores := make([]float64, 0, samples)
	failures := 0
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, "robustness", op, "cancelled")
		}
		perturbed := perturb(rng, flat, uncertainty)
		score := ra.evaluator.Evaluate(ctx, params.FromFlat(perturbed), ra.metric)
		if score <= optimization.FailedScore {
			failures++
			continue
		}
		scores = append(scores, score)
	}
	if len(scores) == 0 {
		return nil, optimization.NewError("robustness", op, "every perturbed sample failed")
	}

	sort.Float64s(scores)
	alpha := 1 - confidence
	mean := stat.Mean(scores, nil)
	std := stat.StdDev(scores, nil)
	if len(scores) < 2 {
		std = 0
	}

	result := &RobustnessResult{
		BasePerformance: base,
		MeanPerformance: mean,
		StdPerformance:  std,
		WorstCase:       scores[0],
		BestCase:        scores[len(scores)-1],
		ConfidenceLow:   stat.Quantile(alpha/2, stat.Empirical, scores, nil),
		ConfidenceHigh:  stat.Quantile(1-alpha/2, stat.Empirical, scores, nil),
		FailureCount:    failures,
		RiskLevel:       riskLevel(mean, std, base),
		Sensitivity:     ra.elasticities(ctx, flat, uncertainty, base),
	}

	scenarios := cfg.Scenarios
	if scenarios == nil {
		scenarios = defaultScenarios(flat)
	}
	result.Scenarios = ra.runScenarios(ctx, flat, scenarios)

	ra.logger.Info("robustness analysis complete",
		zap.Float64("base", base),
		zap.Float64("mean", mean),
		zap.String("risk", result.RiskLevel),
		zap.Int("failures", failures))
	return result, nil
}

// elasticities evaluates each parameter at a plus and a minus
// perturbation and reports the average relative performance change per
// unit of relative parameter change.
func (ra *RobustnessAnalyzer) elasticities(ctx context.Context, flat map[string]float64, uncertainty map[string]float64, base float64) map[string]float64 {
	out := make(map[string]float64, len(flat))
	for name, value := range flat {
		u := uncertainty[name]
		delta := math.Abs(value) * u
		if delta == 0 || math.Abs(base) < 1e-12 {
			out[name] = 0
			continue
		}

		perfPlus := ra.evaluateWith(ctx, flat, name, value+delta)
		perfMinus := ra.evaluateWith(ctx, flat, name, value-delta)
		if perfPlus <= optimization.FailedScore || perfMinus <= optimization.FailedScore {
			out[name] = 0
			continue
		}

		avgChange := math.Abs((perfPlus-base)+(perfMinus-base)) / 2
		out[name] = math.Abs(avgChange / math.Abs(base) / u)
	}
	return out
}

func (ra *RobustnessAnalyzer) evaluateWith(ctx context.Context, flat map[string]float64, name string, value float64) float64 {
	modified := make(map[string]float64, len(flat))
	for k, v := range flat {
		modified[k] = v
	}
	modified[name] = clampPerturbed(name, value)
	return ra.evaluator.Evaluate(ctx, params.FromFlat(modified), ra.metric)
}

// runScenarios evaluates each named override set on top of the analyzed
// assignment. A failed evaluation marks the scenario instead of aborting
// the analysis.
func (ra *RobustnessAnalyzer) runScenarios(ctx context.Context, flat map[string]float64, scenarios []Scenario) []ScenarioOutcome {
	outcomes := make([]ScenarioOutcome, 0, len(scenarios))
	for _, sc := range scenarios {
		merged := make(map[string]float64, len(flat))
		for k, v := range flat {
			merged[k] = v
		}
		for k, v := range sc.Overrides {
			merged[k] = v
		}

		score := ra.evaluator.Evaluate(ctx, params.FromFlat(merged), ra.metric)
		outcome := ScenarioOutcome{
			Name:        sc.Name,
			Overrides:   sc.Overrides,
			Performance: score,
		}
		if score <= optimization.FailedScore {
			outcome.Performance = 0
			outcome.Failed = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// perturb draws a Gaussian perturbation for every parameter, with the
// noise scale set by its relative uncertainty.
func perturb(rng *rand.Rand, flat map[string]float64, uncertainty map[string]float64) map[string]float64 {
	perturbed := make(map[string]float64, len(flat))
	for name, value := range flat {
		std := math.Abs(value) * uncertainty[name]
		perturbed[name] = clampPerturbed(name, value+rng.NormFloat64()*std)
	}
	return perturbed
}

// clampPerturbed keeps perturbed values in their identifier class's sane
// range: proportions in (0, 1), prices positive, volumes whole and at
// least one.
func clampPerturbed(name string, v float64) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "rate") || strings.Contains(lower, "share"):
		return math.Min(0.99, math.Max(0.01, v))
	case strings.Contains(lower, "price") || strings.Contains(lower, "fee"):
		return math.Max(0.1, v)
	case strings.Contains(lower, "per_half_year") || strings.Contains(lower, "clients"):
		return math.Max(1, math.Round(v))
	default:
		return v
	}
}

func defaultUncertainty(name string) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "price") || strings.Contains(lower, "fee"):
		return priceUncertainty
	case strings.Contains(lower, "rate") || strings.Contains(lower, "share"):
		return shareUncertainty
	case strings.Contains(lower, "per_half_year") || strings.Contains(lower, "clients"):
		return volumeUncertainty
	default:
		return otherUncertainty
	}
}

// defaultScenarios builds the optimistic, pessimistic and market-pressure
// scenarios from whichever renewal, volume and price identifiers the
// assignment carries.
func defaultScenarios(flat map[string]float64) []Scenario {
	optimistic := Scenario{Name: "optimistic", Overrides: map[string]float64{}}
	pessimistic := Scenario{Name: "pessimistic", Overrides: map[string]float64{}}
	market := Scenario{Name: "market_volatility", Overrides: map[string]float64{}}

	for name, value := range flat {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "renewal") && strings.Contains(lower, "rate"):
			optimistic.Overrides[name] = math.Min(0.95, value*1.2)
			pessimistic.Overrides[name] = math.Max(0.1, value*0.7)
		case strings.Contains(lower, "clients") && strings.Contains(lower, "per_half_year"):
			optimistic.Overrides[name] = math.Round(value * 1.5)
			pessimistic.Overrides[name] = math.Max(1, math.Round(value*0.6))
		case strings.Contains(lower, "price"):
			market.Overrides[name] = value * 0.8
		}
	}
	return []Scenario{optimistic, pessimistic, market}
}

// riskLevel bands the combined variation and performance-drop score.
// A non-positive mean is always extreme.
func riskLevel(mean, std, base float64) string {
	if mean <= 0 {
		return RiskExtreme
	}
	score := std / mean
	if base > 0 {
		score += math.Max(0, (base-mean)/base)
	}
	switch {
	case score < riskLowThreshold:
		return RiskLow
	case score < riskMediumThreshold:
		return RiskMedium
	case score < riskHighThreshold:
		return RiskHigh
	default:
		return RiskExtreme
	}
}
