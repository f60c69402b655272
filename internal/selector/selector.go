// Package selector ranks search strategies for a given parameter space
// and evaluation budget, and derives suggested hyperparameters for each.
package selector

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// Scoring weights. Dimension fit dominates; preferences only nudge.
const (
	weightDimensions = 0.4
	weightBudget     = 0.3
	weightType       = 0.2
	weightPreference = 0.1
)

// Suitability bands for the overall score.
const (
	SuitabilityExcellent = "excellent"
	SuitabilityGood      = "good"
	SuitabilityFair      = "fair"
	SuitabilityPoor      = "poor"
)

// Preferences bias the ranking toward speed or accuracy.
type Preferences struct {
	PreferFast     bool `json:"prefer_fast" yaml:"prefer_fast"`
	PreferAccurate bool `json:"prefer_accurate" yaml:"prefer_accurate"`
}

// Recommendation is one ranked strategy with its derived tuning.
type Recommendation struct {
	Strategy    string                       `json:"strategy"`
	Score       float64                      `json:"score"`
	Suitability string                       `json:"suitability"`
	Reasons     []string                     `json:"reasons"`
	Warnings    []string                     `json:"warnings,omitempty"`
	Hyper       optimization.Hyperparameters `json:"hyperparameters"`
}

// profile captures a strategy's comfortable operating envelope.
type profile struct {
	name      string
	minDims   int
	maxDims   int
	minBudget int
}

var profiles = []profile{
	{name: "grid_search", minDims: 1, maxDims: 3, minBudget: 27},
	{name: "surrogate", minDims: 2, maxDims: 10, minBudget: 20},
	{name: "genetic", minDims: 3, maxDims: 20, minBudget: 100},
}

// Recommend scores every known strategy against the space and budget
// and returns them ranked best-first. A zero budget means unspecified.
func Recommend(space params.Space, budget int, prefs Preferences) []Recommendation {
	dims := len(space)
	integerDominant := space.IntegerCount() > dims-space.IntegerCount()

	recs := make([]Recommendation, 0, len(profiles))
	for _, p := range profiles {
		rec := Recommendation{Strategy: p.name}

		dimScore := p.dimensionScore(dims)
		budgetScore := p.budgetScore(budget)
		typeScore := p.typeScore(integerDominant)
		prefScore := p.preferenceScore(prefs)

		rec.Score = math.Min(1, weightDimensions*dimScore+
			weightBudget*budgetScore+
			weightType*typeScore+
			weightPreference*prefScore)
		rec.Suitability = suitability(rec.Score)
		rec.Reasons, rec.Warnings = p.explain(dims, budget, dimScore, budgetScore)
		rec.Hyper = p.suggest(dims, budget)

		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Strategy < recs[j].Strategy
	})
	return recs
}

// dimensionScore gives full credit inside the envelope, a flat discount
// below it and an exponential falloff above it.
func (p profile) dimensionScore(dims int) float64 {
	switch {
	case dims >= p.minDims && dims <= p.maxDims:
		return 1.0
	case dims < p.minDims:
		return 0.7
	default:
		return math.Max(0.1, math.Exp(-0.3*float64(dims-p.maxDims)))
	}
}

// budgetScore rewards budgets comfortably above the strategy's minimum.
func (p profile) budgetScore(budget int) float64 {
	if budget <= 0 {
		return 0.8
	}
	if budget >= p.minBudget {
		return math.Min(1, float64(budget)/float64(2*p.minBudget))
	}
	return math.Max(0.1, float64(budget)/float64(p.minBudget))
}

// typeScore discounts the surrogate when integer parameters dominate:
// the Gaussian process assumes a continuous response surface.
func (p profile) typeScore(integerDominant bool) float64 {
	if p.name == "surrogate" && integerDominant {
		return 0.6
	}
	return 1.0
}

func (p profile) preferenceScore(prefs Preferences) float64 {
	switch {
	case prefs.PreferFast && p.name == "genetic":
		return 0.7
	case prefs.PreferAccurate && p.name == "grid_search":
		return 1.2
	default:
		return 1.0
	}
}

func (p profile) explain(dims, budget int, dimScore, budgetScore float64) (reasons, warnings []string) {
	if dimScore == 1.0 {
		reasons = append(reasons, fmt.Sprintf("%d dimensions fit the %s envelope (%d-%d)",
			dims, p.name, p.minDims, p.maxDims))
	} else if dims > p.maxDims {
		warnings = append(warnings, fmt.Sprintf("%d dimensions exceed the %s envelope of %d",
			dims, p.name, p.maxDims))
	}

	if p.name == "grid_search" && dims > p.maxDims {
		warnings = append(warnings, "grid search scales exponentially with dimensions")
	}

	if budget > 0 && budget < p.minBudget {
		warnings = append(warnings, fmt.Sprintf("budget %d is below the recommended minimum of %d",
			budget, p.minBudget))
	} else if budgetScore >= 1 {
		reasons = append(reasons, "budget is comfortably above the recommended minimum")
	}
	return reasons, warnings
}

// suggest derives hyperparameters from the dimensionality and budget.
func (p profile) suggest(dims, budget int) optimization.Hyperparameters {
	if dims < 1 {
		dims = 1
	}
	var hp optimization.Hyperparameters
	switch p.name {
	case "grid_search":
		if budget > 0 {
			per := int(math.Floor(math.Pow(float64(budget), 1/float64(dims)) + 1e-9))
			hp.PointsPerDim = clampInt(per, 2, 7)
		} else {
			hp.PointsPerDim = clampInt(8-dims, 3, 5)
		}
	case "surrogate":
		if budget > 0 {
			hp.NIterations = minInt(budget, maxInt(20, 10*dims))
		} else {
			hp.NIterations = maxInt(30, 8*dims)
		}
		hp.NInitialPoints = minInt(hp.NIterations/3, maxInt(5, 2*dims))
		hp.Xi = 0.1
		if dims > 5 {
			hp.Xi = 0.2
		}
	case "genetic":
		hp.PopulationSize = minInt(50, maxInt(20, 5*dims))
		if budget > 0 {
			hp.NGenerations = maxInt(1, budget/(10*dims))
		} else {
			hp.NGenerations = maxInt(20, 50-3*dims)
		}
		hp.MutationRate = 0.1
		if dims > 7 {
			hp.MutationRate = 0.15
		}
		hp.CrossoverProb = 0.7
	}
	return hp
}

func suitability(score float64) string {
	switch {
	case score >= 0.8:
		return SuitabilityExcellent
	case score >= 0.6:
		return SuitabilityGood
	case score >= 0.4:
		return SuitabilityFair
	default:
		return SuitabilityPoor
	}
}

// Report renders the ranking as text for CLI output.
func Report(recs []Recommendation) string {
	var b strings.Builder
	b.WriteString("Strategy recommendations\n")
	b.WriteString("========================\n")
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. %s (score %.2f, %s)\n", i+1, rec.Strategy, rec.Score, rec.Suitability)
		for _, r := range rec.Reasons {
			fmt.Fprintf(&b, "   + %s\n", r)
		}
		for _, w := range rec.Warnings {
			fmt.Fprintf(&b, "   ! %s\n", w)
		}
	}
	return b.String()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
