package surrogate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPFitAndPredict(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}}
	y := make([]float64, len(x))
	for i, p := range x {
		y[i] = math.Sin(p[0])
	}

	gp := NewGP(NewMatern52(1.0, 1.0), 1e-6, nil)
	require.NoError(t, gp.Fit(x, y))

	t.Run("interpolates training points", func(t *testing.T) {
		for i, p := range x {
			mu, sigma, err := gp.Predict(p)
			require.NoError(t, err)
			assert.InDelta(t, y[i], mu, 0.05)
			assert.Less(t, sigma, 0.1)
		}
	})

	t.Run("uncertainty grows away from data", func(t *testing.T) {
		_, sigmaNear, err := gp.Predict([]float64{1.5})
		require.NoError(t, err)
		_, sigmaFar, err := gp.Predict([]float64{20})
		require.NoError(t, err)
		assert.Greater(t, sigmaFar, sigmaNear)
	})
}

func TestGPFitValidation(t *testing.T) {
	gp := NewGP(NewMatern52(1, 1), 1e-6, nil)

	assert.Error(t, gp.Fit(nil, nil))
	assert.Error(t, gp.Fit([][]float64{{1}, {2}}, []float64{1}))
}

func TestGPPredictBeforeFit(t *testing.T) {
	gp := NewGP(NewMatern52(1, 1), 1e-6, nil)
	_, _, err := gp.Predict([]float64{0})
	assert.Error(t, err)
}

func TestGPDuplicatePointsStillFactorize(t *testing.T) {
	// Duplicate rows make the kernel matrix singular without jitter.
	x := [][]float64{{1}, {1}, {2}}
	y := []float64{3, 3, 5}

	gp := NewGP(NewRBF(1, 1), 1e-6, nil)
	require.NoError(t, gp.Fit(x, y))

	mu, _, err := gp.Predict([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mu, 0.1)
}

func TestGPRefitReusesPooledMatrices(t *testing.T) {
	gp := NewGP(NewRBF(1, 1), 1e-6, nil)
	require.NoError(t, gp.Fit([][]float64{{1}, {2}, {3}}, []float64{1, 2, 3}))

	// Both the kernel matrix and the jittered working copy return to the
	// pool after a fit.
	pooled := len(gp.pool.sym[3])
	assert.GreaterOrEqual(t, pooled, 2)

	// A refit at the same size draws from the pool instead of growing it.
	require.NoError(t, gp.Fit([][]float64{{1}, {2}, {4}}, []float64{1, 2, 4}))
	assert.Equal(t, pooled, len(gp.pool.sym[3]))
}

func TestMatrixPoolReusesBySize(t *testing.T) {
	pool := newMatrixPool()
	m := pool.getSym(3)
	pool.putSym(m)
	assert.Same(t, m, pool.getSym(3))

	other := pool.getSym(5)
	r, _ := other.Dims()
	assert.Equal(t, 5, r)
}
