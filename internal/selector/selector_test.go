package selector

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast/fincast/internal/params"
)

func continuousSpace(dims int) params.Space {
	space := params.Space{}
	names := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta",
		"eta", "theta", "iota", "kappa", "lambda", "mu"}
	for i := 0; i < dims; i++ {
		space[names[i]+"_share"] = params.Bounds{Min: 0, Max: 0.95}
	}
	return space
}

func TestRecommendRanksByFit(t *testing.T) {
	t.Run("low dimensional space favors grid", func(t *testing.T) {
		recs := Recommend(continuousSpace(2), 100, Preferences{})
		require.Len(t, recs, 3)
		assert.Equal(t, "grid_search", recs[0].Strategy)
	})

	t.Run("mid dimensional space favors surrogate", func(t *testing.T) {
		recs := Recommend(continuousSpace(6), 100, Preferences{})
		assert.Equal(t, "surrogate", recs[0].Strategy)
	})

	t.Run("scores stay in unit range", func(t *testing.T) {
		for _, recs := range [][]Recommendation{
			Recommend(continuousSpace(1), 10, Preferences{}),
			Recommend(continuousSpace(12), 100000, Preferences{PreferAccurate: true}),
		} {
			for _, rec := range recs {
				assert.GreaterOrEqual(t, rec.Score, 0.0)
				assert.LessOrEqual(t, rec.Score, 1.0)
			}
		}
	})
}

func TestDimensionScore(t *testing.T) {
	grid := profiles[0]

	assert.Equal(t, 1.0, grid.dimensionScore(2))
	assert.Equal(t, 0.7, profiles[2].dimensionScore(1))
	assert.InDelta(t, math.Exp(-0.3*2), grid.dimensionScore(5), 1e-12)
	assert.Equal(t, 0.1, grid.dimensionScore(50))
}

func TestBudgetScore(t *testing.T) {
	surrogate := profiles[1]

	assert.Equal(t, 0.8, surrogate.budgetScore(0))
	assert.Equal(t, 1.0, surrogate.budgetScore(40))
	assert.Equal(t, 0.5, surrogate.budgetScore(20))
	assert.InDelta(t, 0.5, surrogate.budgetScore(10), 1e-12)
	assert.Equal(t, 0.1, surrogate.budgetScore(1))
}

func TestTypeScorePenalizesSurrogateOnIntegerSpaces(t *testing.T) {
	space := params.Space{
		"new_clients_per_period": {Min: 2, Max: 15},
		"client_count":           {Min: 1, Max: 50},
		"price_share":            {Min: 0, Max: 0.95},
	}
	recs := Recommend(space, 100, Preferences{})

	var surrogateRec, geneticRec Recommendation
	for _, rec := range recs {
		switch rec.Strategy {
		case "surrogate":
			surrogateRec = rec
		case "genetic":
			geneticRec = rec
		}
	}
	// Same dims and budget; only the type component differs in direction.
	assert.Equal(t, 0.6, profiles[1].typeScore(true))
	assert.Equal(t, 1.0, profiles[2].typeScore(true))
	assert.NotZero(t, surrogateRec.Strategy)
	assert.NotZero(t, geneticRec.Strategy)
}

func TestPreferences(t *testing.T) {
	fast := Recommend(continuousSpace(5), 200, Preferences{PreferFast: true})
	neutral := Recommend(continuousSpace(5), 200, Preferences{})

	scoreOf := func(recs []Recommendation, name string) float64 {
		for _, rec := range recs {
			if rec.Strategy == name {
				return rec.Score
			}
		}
		t.Fatalf("strategy %s missing", name)
		return 0
	}

	assert.Less(t, scoreOf(fast, "genetic"), scoreOf(neutral, "genetic"))
	assert.Equal(t, scoreOf(fast, "surrogate"), scoreOf(neutral, "surrogate"))
}

func TestGridWarningOnHighDimensions(t *testing.T) {
	recs := Recommend(continuousSpace(6), 100, Preferences{})
	for _, rec := range recs {
		if rec.Strategy != "grid_search" {
			continue
		}
		joined := strings.Join(rec.Warnings, "; ")
		assert.Contains(t, joined, "exponentially")
		return
	}
	t.Fatal("grid_search recommendation missing")
}

func TestSuggestedHyperparameters(t *testing.T) {
	t.Run("grid sizes to budget root", func(t *testing.T) {
		hp := profiles[0].suggest(2, 49)
		assert.Equal(t, 7, hp.PointsPerDim)

		hp = profiles[0].suggest(2, 1000)
		assert.Equal(t, 7, hp.PointsPerDim, "capped at 7")

		hp = profiles[0].suggest(4, 0)
		assert.Equal(t, 4, hp.PointsPerDim)
	})

	t.Run("surrogate iterations scale with dims", func(t *testing.T) {
		hp := profiles[1].suggest(4, 100)
		assert.Equal(t, 40, hp.NIterations)
		assert.Equal(t, 8, hp.NInitialPoints)
		assert.Equal(t, 0.1, hp.Xi)

		hp = profiles[1].suggest(8, 0)
		assert.Equal(t, 64, hp.NIterations)
		assert.Equal(t, 0.2, hp.Xi)
	})

	t.Run("genetic population bounded", func(t *testing.T) {
		hp := profiles[2].suggest(3, 600)
		assert.Equal(t, 20, hp.PopulationSize)
		assert.Equal(t, 20, hp.NGenerations)
		assert.Equal(t, 0.1, hp.MutationRate)
		assert.Equal(t, 0.7, hp.CrossoverProb)

		hp = profiles[2].suggest(15, 0)
		assert.Equal(t, 50, hp.PopulationSize)
		assert.Equal(t, 0.15, hp.MutationRate)
		assert.Equal(t, 20, hp.NGenerations)
	})
}

func TestSuitabilityBands(t *testing.T) {
	assert.Equal(t, SuitabilityExcellent, suitability(0.85))
	assert.Equal(t, SuitabilityGood, suitability(0.65))
	assert.Equal(t, SuitabilityFair, suitability(0.45))
	assert.Equal(t, SuitabilityPoor, suitability(0.2))
}

func TestReport(t *testing.T) {
	recs := Recommend(continuousSpace(3), 150, Preferences{})
	report := Report(recs)

	assert.Contains(t, report, "1. ")
	for _, rec := range recs {
		assert.Contains(t, report, rec.Strategy)
	}
}
