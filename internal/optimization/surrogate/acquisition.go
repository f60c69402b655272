package surrogate

import "gonum.org/v1/gonum/stat/distuv"

// ExpectedImprovement scores candidate points by how much they are
// expected to improve on the best observed value. Scores are maximized
// throughout, so improvement is measured upward.
type ExpectedImprovement struct {
	// Best observed value so far.
	bestObserved float64
	// Exploration-exploitation trade-off parameter.
	xi float64
}

// NewExpectedImprovement creates an ExpectedImprovement acquisition
// function.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{bestObserved: bestObserved, xi: xi}
}

// Compute returns the expected improvement at a point with posterior
// mean mu and standard deviation sigma. The result is non-negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := mu - ei.bestObserved - ei.xi
	if sigma <= 1e-10 {
		if improvement > 0 {
			return improvement
		}
		return 0
	}

	stdNormal := distuv.UnitNormal
	z := improvement / sigma

	// EI = improvement * Φ(z) + sigma * φ(z)
	return improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
}

// UpdateBest updates the best observed value.
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// SetXi sets the exploration-exploitation trade-off parameter.
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best observed value.
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
