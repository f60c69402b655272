package ensemble

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

func testSpace() params.Space {
	return params.Space{
		"pricing.base":   {Min: 0, Max: 1.5},
		"pricing.spread": {Min: 0, Max: 1.5},
	}
}

func testEvaluator() optimization.Evaluator {
	return optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
		base, _ := a.Get("pricing.base")
		spread, _ := a.Get("pricing.spread")
		return -(base-1)*(base-1) - (spread-0.5)*(spread-0.5)
	})
}

func TestOptimizeFusesStrategies(t *testing.T) {
	opt := New(testEvaluator(), "net_revenue", nil, nil, nil, nil)

	result, err := opt.Optimize(context.Background(), testSpace(), 150, Options{
		Policy: PolicyAuto,
		Seed:   17,
	})
	require.NoError(t, err)

	require.NotNil(t, result.BestAssignment)
	assert.NotEmpty(t, result.Provenance)
	assert.NotEmpty(t, result.StrategyResults)
	assert.Equal(t, 150, func() int {
		total := 0
		for _, v := range result.Allocation {
			total += v
		}
		return total
	}())

	// The fused answer never loses to any single successful strategy.
	for name, sr := range result.StrategyResults {
		if sr.Succeeded() {
			assert.GreaterOrEqual(t, result.BestScore, sr.BestScore, name)
		}
	}
	assert.Greater(t, result.BestScore, -0.5)
}

func TestOptimizeSequentialPolicy(t *testing.T) {
	opt := New(testEvaluator(), "net_revenue", nil, nil, nil, nil)

	result, err := opt.Optimize(context.Background(), testSpace(), 60, Options{
		Policy: PolicySequential,
		Seed:   3,
	})
	require.NoError(t, err)
	assert.Len(t, result.Allocation, 1)
	assert.Len(t, result.StrategyResults, 1)
}

type erroringStrategy struct{ name string }

func (s *erroringStrategy) Name() string { return s.name }

func (s *erroringStrategy) Search(context.Context, optimization.SearchConfig, *monitor.Monitor) (*optimization.Result, error) {
	return nil, optimization.NewError(s.name, "Search", "synthetic failure")
}

type panickingStrategy struct{ name string }

func (s *panickingStrategy) Name() string { return s.name }

func (s *panickingStrategy) Search(context.Context, optimization.SearchConfig, *monitor.Monitor) (*optimization.Result, error) {
	panic("synthetic panic")
}

func TestOptimizeSurvivesOneFailure(t *testing.T) {
	opt := New(testEvaluator(), "net_revenue", nil, nil, nil, nil)
	opt.Register(&erroringStrategy{name: "surrogate"})

	result, err := opt.Optimize(context.Background(), testSpace(), 150, Options{
		Policy: PolicyEqual,
		Seed:   5,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Failures, "surrogate")
	assert.NotContains(t, result.Failures, "grid_search")
	require.NotNil(t, result.BestAssignment)
	assert.NotEqual(t, "surrogate", result.Provenance)
}

func TestOptimizeRecoversFromPanic(t *testing.T) {
	opt := New(testEvaluator(), "net_revenue", nil, nil, nil, nil)
	opt.Register(&panickingStrategy{name: "grid_search"})

	result, err := opt.Optimize(context.Background(), testSpace(), 150, Options{
		Policy: PolicyEqual,
		Seed:   5,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Failures["grid_search"], "panicked")
	require.NotNil(t, result.BestAssignment)
}

func TestOptimizeAllFailed(t *testing.T) {
	failing := optimization.EvaluatorFunc(func(context.Context, params.Assignment, string) float64 {
		return optimization.FailedScore
	})
	opt := New(failing, "net_revenue", nil, nil, nil, nil)

	_, err := opt.Optimize(context.Background(), testSpace(), 100, Options{
		Policy: PolicyAuto,
		Seed:   1,
	})
	assert.ErrorIs(t, err, ErrAllStrategiesFailed)
}

func TestOptimizeNonReentrantEvaluatorRunsSequentially(t *testing.T) {
	var active, maxActive int64
	evaluator := optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
		current := atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)
		for {
			observed := atomic.LoadInt64(&maxActive)
			if current <= observed || atomic.CompareAndSwapInt64(&maxActive, observed, current) {
				break
			}
		}
		base, _ := a.Get("pricing.base")
		return base
	})

	opt := New(evaluator, "net_revenue", nil, nil, nil, nil)
	_, err := opt.Optimize(context.Background(), testSpace(), 120, Options{
		Policy:   PolicyEqual,
		Parallel: true,
		// ReentrantEvaluator deliberately left false.
		Seed: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&maxActive))
}

func TestOptimizeParallelExecution(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	evaluator := optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
		mu.Lock()
		calls++
		mu.Unlock()
		base, _ := a.Get("pricing.base")
		return base
	})

	opt := New(evaluator, "net_revenue", nil, nil, nil, nil)
	result, err := opt.Optimize(context.Background(), testSpace(), 150, Options{
		Policy:             PolicyEqual,
		Parallel:           true,
		ReentrantEvaluator: true,
		MaxWorkers:         2,
		Seed:               9,
	})
	require.NoError(t, err)
	require.NotNil(t, result.BestAssignment)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, calls, 0)
	assert.LessOrEqual(t, calls, 151, "budget plus at most one fusion evaluation")
}

func TestOptimizeValidation(t *testing.T) {
	opt := New(testEvaluator(), "net_revenue", nil, nil, nil, nil)

	_, err := opt.Optimize(context.Background(), params.Space{}, 100, Options{})
	assert.Error(t, err)

	_, err = opt.Optimize(context.Background(), testSpace(), 0, Options{})
	assert.Error(t, err)
}

func TestConvergenceInfo(t *testing.T) {
	outcomes := []runOutcome{
		{name: "a", converged: true, result: &optimization.Result{BestScore: 10}},
		{name: "b", converged: false, result: &optimization.Result{BestScore: 10}},
	}

	info := convergenceInfo(outcomes, 3)
	assert.Equal(t, 1, info.ConvergedCount)
	assert.InDelta(t, 1.0, info.ScoreConsistency, 1e-6)
	assert.InDelta(t, 1.0/3.0, info.Confidence, 1e-9)
}

func TestWeightedAverageFavorsConvergedRuns(t *testing.T) {
	succeeded := []runOutcome{
		{
			name:      "a",
			converged: true,
			result: &optimization.Result{
				BestAssignment: params.FromFlat(map[string]float64{"x": 1}),
				BestScore:      10,
			},
		},
		{
			name: "b",
			result: &optimization.Result{
				BestAssignment: params.FromFlat(map[string]float64{"x": 0}),
				BestScore:      10,
			},
		},
	}

	averaged := weightedAverage(succeeded)
	x, ok := averaged.Get("x")
	require.True(t, ok)
	assert.Greater(t, x, 0.5, "converged run carries more weight")
	assert.Less(t, x, 1.0)
}
