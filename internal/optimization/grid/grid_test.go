package grid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

func TestSearchFindsQuadraticOptimum(t *testing.T) {
	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
			x, _ := a.Get("x")
			return -(x - 7) * (x - 7)
		}),
		Metric: "net_revenue",
		Space:  params.Space{"x": {Min: 0, Max: 10}},
		Budget: 11,
		Hyper:  optimization.Hyperparameters{PointsPerDim: 11},
	}

	result, err := New().Search(context.Background(), cfg, monitor.New(100, 0))
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	x, _ := result.BestAssignment.Get("x")
	assert.Equal(t, 7.0, x)
	assert.Equal(t, 0.0, result.BestScore)
	assert.Equal(t, 11, result.Iterations)
	assert.Equal(t, "grid_search", result.Strategy)
}

func TestSearchIsDeterministic(t *testing.T) {
	run := func() []map[string]float64 {
		cfg := optimization.SearchConfig{
			Evaluator: optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 {
				return 1
			}),
			Metric: "net_revenue",
			Space: params.Space{
				"a": {Min: 0, Max: 1},
				"b": {Min: 10, Max: 20},
			},
			Budget: 9,
			Hyper:  optimization.Hyperparameters{PointsPerDim: 3},
		}
		result, err := New().Search(context.Background(), cfg, monitor.New(100, 0))
		require.NoError(t, err)

		sequence := make([]map[string]float64, 0, len(result.Trace))
		for _, rec := range result.Trace {
			sequence = append(sequence, rec.Assignment)
		}
		return sequence
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.Len(t, first, 9)

	// Sorted dimension order with the last dimension varying fastest.
	assert.Equal(t, map[string]float64{"a": 0, "b": 10}, first[0])
	assert.Equal(t, map[string]float64{"a": 0, "b": 15}, first[1])
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 10}, first[3])
}

func TestSearchRespectsBudget(t *testing.T) {
	evaluations := 0
	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 {
			evaluations++
			return float64(evaluations)
		}),
		Metric: "net_revenue",
		Space: params.Space{
			"a": {Min: 0, Max: 1},
			"b": {Min: 0, Max: 1},
		},
		Budget: 5,
		Hyper:  optimization.Hyperparameters{PointsPerDim: 4},
	}

	result, err := New().Search(context.Background(), cfg, monitor.New(100, 0))
	require.NoError(t, err)
	assert.Equal(t, 5, evaluations)
	assert.Equal(t, 5, result.Iterations)
}

func TestSearchDegenerateBoundsCollapse(t *testing.T) {
	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
			x, _ := a.Get("x")
			return x
		}),
		Metric: "net_revenue",
		Space: params.Space{
			"fixed": {Min: 3, Max: 3},
			"x":     {Min: 0, Max: 1},
		},
		Budget: 20,
		Hyper:  optimization.Hyperparameters{PointsPerDim: 5},
	}

	result, err := New().Search(context.Background(), cfg, monitor.New(100, 0))
	require.NoError(t, err)
	// 1 point for the degenerate dimension, 5 for the other.
	assert.Equal(t, 5, result.Iterations)

	fixed, _ := result.BestAssignment.Get("fixed")
	assert.Equal(t, 3.0, fixed)
}

func TestSearchRejectsInvalidSpace(t *testing.T) {
	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 { return 0 }),
		Metric:    "net_revenue",
		Space:     params.Space{},
		Budget:    10,
	}

	_, err := New().Search(context.Background(), cfg, monitor.New(0, 0))
	assert.Error(t, err)
}

func TestSearchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 { return 0 }),
		Metric:    "net_revenue",
		Space:     params.Space{"x": {Min: 0, Max: 1}},
		Budget:    10,
	}

	_, err := New().Search(ctx, cfg, monitor.New(0, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDerivePointsPerDim(t *testing.T) {
	tests := []struct {
		name   string
		budget int
		dims   int
		want   int
	}{
		{"cube root of budget", 27, 3, 3},
		{"floors fractional roots", 30, 3, 3},
		{"caps at maximum", 10000, 1, 10},
		{"floors at minimum", 3, 4, 2},
		{"no budget", 0, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, derivePointsPerDim(tt.budget, tt.dims))
		})
	}
}

func TestExplorationRateDecays(t *testing.T) {
	cfg := optimization.SearchConfig{
		Evaluator: optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 { return 1 }),
		Metric:    "net_revenue",
		Space:     params.Space{"x": {Min: 0, Max: 1}},
		Budget:    4,
		Hyper:     optimization.Hyperparameters{PointsPerDim: 4},
	}

	result, err := New().Search(context.Background(), cfg, monitor.New(100, 0))
	require.NoError(t, err)
	require.Len(t, result.Trace, 4)
	for i := 1; i < len(result.Trace); i++ {
		assert.Less(t, result.Trace[i].ExplorationRate, result.Trace[i-1].ExplorationRate)
	}
}
