package optimization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast/fincast/internal/constraints"
	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
)

func quadraticEvaluator(t *testing.T) Evaluator {
	t.Helper()
	return EvaluatorFunc(func(_ context.Context, overrides params.Assignment, metric string) float64 {
		assert.Equal(t, "net_revenue", metric)
		x, ok := overrides.Get("x")
		require.True(t, ok)
		return -(x - 7) * (x - 7)
	})
}

func TestPipelineTracksBest(t *testing.T) {
	cfg := &SearchConfig{
		Evaluator: quadraticEvaluator(t),
		Metric:    "net_revenue",
		Space:     params.Space{"x": {Min: 0, Max: 10}},
		Budget:    10,
	}
	pipe := NewPipeline("test", cfg, monitor.New(0, 0))

	for _, x := range []float64{0, 5, 7, 9} {
		pipe.Evaluate(context.Background(), params.FromFlat(map[string]float64{"x": x}), monitor.Aux{})
	}

	best, score := pipe.Best()
	require.NotNil(t, best)
	x, _ := best.Get("x")
	assert.Equal(t, 7.0, x)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 4, pipe.Iterations())

	result := pipe.Result()
	assert.Len(t, result.Trace, 4)
	assert.Equal(t, 4, result.Convergence.Iterations)
	assert.True(t, result.Succeeded())
}

func TestPipelineRepairsBeforeEvaluation(t *testing.T) {
	handler := constraints.NewHandler()
	handler.AddBoundary("x", params.Bounds{Min: 0, Max: 10})

	var seen float64
	cfg := &SearchConfig{
		Evaluator: EvaluatorFunc(func(_ context.Context, overrides params.Assignment, _ string) float64 {
			seen, _ = overrides.Get("x")
			return 1
		}),
		Metric:      "net_revenue",
		Space:       params.Space{"x": {Min: 0, Max: 10}},
		Budget:      5,
		Constraints: handler,
	}
	pipe := NewPipeline("test", cfg, monitor.New(0, 0))

	pipe.Evaluate(context.Background(), params.FromFlat(map[string]float64{"x": 25}), monitor.Aux{})

	assert.Equal(t, 10.0, seen)

	_, score := pipe.Best()
	assert.Equal(t, 1.0, score)
}

func TestPipelineSubtractsWeightedPenalty(t *testing.T) {
	cfg := &SearchConfig{
		Evaluator: EvaluatorFunc(func(context.Context, params.Assignment, string) float64 {
			return 100
		}),
		Metric:        "net_revenue",
		Space:         params.Space{"price_annual_member": {Min: 0, Max: 300}},
		Budget:        5,
		Realism:       realism.NewAdjuster(realism.DefaultConfig()),
		PenaltyWeight: 0.5,
	}
	pipe := NewPipeline("test", cfg, monitor.New(0, 0))

	// 120 is 60 above the realistic maximum of 60: penalty = 60/60*100 = 100.
	adjusted := pipe.Evaluate(context.Background(),
		params.FromFlat(map[string]float64{"price_annual_member": 120}), monitor.Aux{})

	assert.InDelta(t, 100-0.5*100, adjusted, 1e-9)

	record := pipe.Result().Trace[0]
	assert.InDelta(t, 100.0, record.Penalty, 1e-9)
	assert.Equal(t, 100.0, record.RawScore)
}

func TestPipelineFailedEvaluationNeverWins(t *testing.T) {
	calls := 0
	cfg := &SearchConfig{
		Evaluator: EvaluatorFunc(func(context.Context, params.Assignment, string) float64 {
			calls++
			if calls == 1 {
				return FailedScore
			}
			return 5
		}),
		Metric: "net_revenue",
		Space:  params.Space{"x": {Min: 0, Max: 1}},
		Budget: 5,
	}
	pipe := NewPipeline("test", cfg, monitor.New(0, 0))

	pipe.Evaluate(context.Background(), params.FromFlat(map[string]float64{"x": 0.1}), monitor.Aux{})
	best, _ := pipe.Best()
	assert.Nil(t, best, "failed evaluation must not become the best")
	assert.True(t, pipe.Result().Trace[0].Failed)

	pipe.Evaluate(context.Background(), params.FromFlat(map[string]float64{"x": 0.2}), monitor.Aux{})
	best, score := pipe.Best()
	require.NotNil(t, best)
	assert.Equal(t, 5.0, score)
}

func TestPipelineStopsAtBudget(t *testing.T) {
	cfg := &SearchConfig{
		Evaluator: EvaluatorFunc(func(context.Context, params.Assignment, string) float64 { return 1 }),
		Metric:    "net_revenue",
		Space:     params.Space{"x": {Min: 0, Max: 1}},
		Budget:    3,
	}
	pipe := NewPipeline("test", cfg, monitor.New(0, 0))

	for i := 0; i < 3; i++ {
		assert.False(t, pipe.ShouldStop())
		pipe.Evaluate(context.Background(), params.FromFlat(map[string]float64{"x": 0.5}), monitor.Aux{})
	}
	assert.True(t, pipe.ShouldStop())
	assert.True(t, pipe.BudgetExhausted())
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("grid_search", "Search", "empty parameter space")
	assert.Equal(t, "grid_search: Search: empty parameter space", err.Error())

	wrapped := WrapError(assert.AnError, "ensemble", "Optimize", "strategy failed")
	assert.ErrorIs(t, wrapped, assert.AnError)
}
