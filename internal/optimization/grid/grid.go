// Package grid implements exhaustive grid search over the parameter
// space. It is deterministic: the same space, budget and hyperparameters
// always produce the same candidate sequence.
package grid

import (
	"context"
	"fmt"
	"math"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

const (
	// maxPointsPerDim caps the derived grid resolution.
	maxPointsPerDim = 10
	// minPointsPerDim keeps at least the two endpoints per dimension.
	minPointsPerDim = 2
)

// Strategy is the grid search implementation.
type Strategy struct{}

// New returns a grid search strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name implements optimization.Strategy.
func (s *Strategy) Name() string {
	return "grid_search"
}

// Search enumerates the Cartesian product of evenly spaced values per
// dimension, in fixed dimension order, evaluating each candidate until
// the grid, the budget or the monitor ends the run.
func (s *Strategy) Search(ctx context.Context, cfg optimization.SearchConfig, mon *monitor.Monitor) (*optimization.Result, error) {
	if err := cfg.Space.Validate(); err != nil {
		return nil, optimization.WrapError(err, s.Name(), "Search", "invalid parameter space")
	}

	names := cfg.Space.Names()
	perDim := cfg.Hyper.PointsPerDim
	if perDim <= 0 {
		perDim = derivePointsPerDim(cfg.Budget, len(names))
	}

	axes := make([][]float64, len(names))
	total := 1
	for i, name := range names {
		axes[i] = axisValues(cfg.Space[name], perDim)
		total *= len(axes[i])
	}

	pipe := optimization.NewPipeline(s.Name(), &cfg, mon)
	cfg.ReportProgress(0, fmt.Sprintf("grid of %d candidates", total))

	// Odometer over the per-dimension axes; the last dimension varies
	// fastest so the enumeration order is reproducible.
	indices := make([]int, len(names))
	flat := make(map[string]float64, len(names))
	for evaluated := 0; evaluated < total; evaluated++ {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, s.Name(), "Search", "cancelled")
		}

		for i, name := range names {
			flat[name] = axes[i][indices[i]]
		}

		progress := float64(evaluated) / float64(total)
		pipe.Evaluate(ctx, params.FromFlat(flat), monitor.Aux{
			ExplorationRate: 1 - progress,
			HasExploration:  true,
		})

		if pipe.ShouldStop() {
			break
		}
		cfg.ReportProgress(progress, "searching grid")

		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i]) {
				break
			}
			indices[i] = 0
		}
	}

	cfg.ReportProgress(1, "grid search complete")
	return pipe.Result(), nil
}

// derivePointsPerDim sizes the grid so the full product stays near the
// evaluation budget.
func derivePointsPerDim(budget, dims int) int {
	if budget <= 0 || dims <= 0 {
		return minPointsPerDim
	}
	// The epsilon guards against Pow returning 2.999... for exact roots.
	per := int(math.Floor(math.Pow(float64(budget), 1/float64(dims)) + 1e-9))
	if per < minPointsPerDim {
		per = minPointsPerDim
	}
	if per > maxPointsPerDim {
		per = maxPointsPerDim
	}
	return per
}

// axisValues returns evenly spaced values across the bounds. Degenerate
// bounds collapse to a single point.
func axisValues(b params.Bounds, n int) []float64 {
	if b.Width() == 0 {
		return []float64{b.Min}
	}
	values := make([]float64, 0, n)
	step := b.Width() / float64(n-1)
	for i := 0; i < n; i++ {
		values = append(values, b.Min+float64(i)*step)
	}
	values[n-1] = b.Max

	return values
}
