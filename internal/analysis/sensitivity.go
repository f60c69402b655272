package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// DefaultSweepSteps is the evaluation count per parameter sweep.
const DefaultSweepSteps = 10

// SweepPoint is one evaluated value of a swept parameter.
type SweepPoint struct {
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// Sweep holds the one-at-a-time sensitivity curve for one parameter.
type Sweep struct {
	Parameter string       `json:"parameter"`
	Points    []SweepPoint `json:"points"`
}

// Importance ranks one parameter's influence on the objective.
type Importance struct {
	Parameter string `json:"parameter"`
	// Variation is the coefficient of variation of the sweep scores.
	Variation float64 `json:"variation"`
	// ChangeRate is the relative spread (max-min)/min of the scores.
	ChangeRate float64 `json:"change_rate"`
	// Correlation is the linear correlation between value and score.
	Correlation float64 `json:"correlation"`
	// Score is Variation weighted by the correlation strength.
	Score float64 `json:"score"`
}

// SensitivityAnalyzer sweeps parameters one at a time against the
// evaluator while the rest of the assignment stays fixed.
type SensitivityAnalyzer struct {
	evaluator optimization.Evaluator
	metric    string
	logger    *zap.Logger
}

// NewSensitivityAnalyzer creates an analyzer over the given evaluator
// and objective metric. A nil logger is allowed.
func NewSensitivityAnalyzer(evaluator optimization.Evaluator, metric string, logger *zap.Logger) *SensitivityAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensitivityAnalyzer{
		evaluator: evaluator,
		metric:    metric,
		logger:    logger.Named("sensitivity"),
	}
}

// SweepParameter evaluates evenly spaced values of one parameter across
// its bounds. Integer parameters are swept over whole values only.
// Failed evaluations are dropped from the curve.
func (sa *SensitivityAnalyzer) SweepParameter(ctx context.Context, base params.Assignment, name string, bounds params.Bounds, steps int) (*Sweep, error) {
	const op = "SweepParameter"

	if bounds.Min > bounds.Max {
		return nil, optimization.NewErrorf("sensitivity", op, "invalid bounds for %q", name)
	}
	if steps < 2 {
		steps = DefaultSweepSteps
	}

	values := sweepValues(name, bounds, steps)
	flat := base.Flatten()

	sweep := &Sweep{Parameter: name, Points: make([]SweepPoint, 0, len(values))}
	for _, value := range values {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, "sensitivity", op, "cancelled")
		}

		modified := make(map[string]float64, len(flat)+1)
		for k, v := range flat {
			modified[k] = v
		}
		modified[name] = value

		score := sa.evaluator.Evaluate(ctx, params.FromFlat(modified), sa.metric)
		if score <= optimization.FailedScore {
			continue
		}
		sweep.Points = append(sweep.Points, SweepPoint{Value: value, Score: score})
	}

	sa.logger.Debug("parameter sweep complete",
		zap.String("parameter", name),
		zap.Int("points", len(sweep.Points)))
	return sweep, nil
}

// SweepAll sweeps every parameter of the space against the base
// assignment.
func (sa *SensitivityAnalyzer) SweepAll(ctx context.Context, base params.Assignment, space params.Space, steps int) ([]*Sweep, error) {
	names := space.Names()
	sweeps := make([]*Sweep, 0, len(names))
	for _, name := range names {
		sweep, err := sa.SweepParameter(ctx, base, name, space[name], steps)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, sweep)
	}
	return sweeps, nil
}

// RankImportance orders parameters by how strongly their sweep moved the
// objective. Sweeps with fewer than two surviving points are skipped.
func RankImportance(sweeps []*Sweep) []Importance {
	ranked := make([]Importance, 0, len(sweeps))
	for _, sweep := range sweeps {
		if sweep == nil || len(sweep.Points) < 2 {
			continue
		}

		values := make([]float64, len(sweep.Points))
		scores := make([]float64, len(sweep.Points))
		for i, p := range sweep.Points {
			values[i] = p.Value
			scores[i] = p.Score
		}

		mean := stat.Mean(scores, nil)
		std := stat.StdDev(scores, nil)
		variation := 0.0
		if mean > 0 {
			variation = std / mean
		}

		min, max := scores[0], scores[0]
		for _, s := range scores[1:] {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
		changeRate := 0.0
		if min > 0 {
			changeRate = (max - min) / min
		}

		correlation := stat.Correlation(values, scores, nil)
		if math.IsNaN(correlation) {
			correlation = 0
		}

		ranked = append(ranked, Importance{
			Parameter:   sweep.Parameter,
			Variation:   variation,
			ChangeRate:  changeRate,
			Correlation: correlation,
			Score:       variation * math.Abs(correlation),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Parameter < ranked[j].Parameter
	})
	return ranked
}

// Insights renders the ranked importance list as actionable statements.
func Insights(ranked []Importance) []string {
	if len(ranked) == 0 {
		return []string{"not enough sweep data to rank parameter influence"}
	}

	insights := make([]string, 0, len(ranked)+1)
	top := ranked[0]
	direction := "raises"
	if top.Correlation < 0 {
		direction = "lowers"
	}
	insights = append(insights, fmt.Sprintf(
		"%s dominates the objective: increasing it %s the result (importance %.3f)",
		top.Parameter, direction, top.Score))

	for _, imp := range ranked[1:] {
		if imp.ChangeRate > 0.5 {
			insights = append(insights, fmt.Sprintf(
				"%s swings the objective by %.0f%% across its range; monitor it closely",
				imp.Parameter, imp.ChangeRate*100))
		}
	}
	return insights
}

// sweepValues spaces steps values evenly across the bounds; integer
// parameters collapse to their distinct whole values.
func sweepValues(name string, bounds params.Bounds, steps int) []float64 {
	if bounds.Width() == 0 {
		return []float64{bounds.Min}
	}

	values := make([]float64, steps)
	for i := range values {
		values[i] = bounds.Min + float64(i)/float64(steps-1)*bounds.Width()
	}
	if !params.IsIntegerParam(name, bounds) {
		return values
	}

	seen := make(map[float64]bool, steps)
	rounded := values[:0]
	for _, v := range values {
		r := bounds.Clamp(math.Round(v))
		if !seen[r] {
			seen[r] = true
			rounded = append(rounded, r)
		}
	}
	return rounded
}
