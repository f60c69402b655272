package surrogate

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fincast/fincast/internal/optimization"
)

// defaultNoiseVar keeps the kernel matrix well conditioned even when the
// objective is deterministic.
const defaultNoiseVar = 1e-6

// GP is a Gaussian process regression model over evaluated candidates.
// One instance is refitted as observations accumulate; the matrix pool
// reuses kernel-matrix allocations across jitter attempts and refits.
type GP struct {
	kernel   Kernel
	noiseVar float64

	// Training data
	x [][]float64
	y []float64

	chol  *mat.Cholesky
	alpha *mat.VecDense

	pool   *matrixPool
	logger *zap.Logger
}

// NewGP creates a Gaussian process with the given kernel. A nil logger
// disables GP-level logging.
func NewGP(kernel Kernel, noiseVar float64, logger *zap.Logger) *GP {
	if noiseVar <= 0 {
		noiseVar = defaultNoiseVar
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		pool:     newMatrixPool(),
		logger:   logger.Named("gaussian_process"),
	}
}

// Fit fits the model to the observed points and values. It escalates
// diagonal jitter until the kernel matrix factorizes.
func (gp *GP) Fit(x [][]float64, y []float64) error {
	const op = "GP.Fit"

	if len(x) == 0 {
		return optimization.NewError("surrogate", op, "no training points")
	}
	if len(x) != len(y) {
		return optimization.NewErrorf("surrogate", op,
			"dimension mismatch: %d points but %d values", len(x), len(y))
	}

	n := len(x)
	gp.x = x
	gp.y = y

	k := gp.pool.getSym(n)
	defer gp.pool.putSym(k)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, gp.kernel.Eval(x[i], x[j]))
		}
	}

	yVec := mat.NewVecDense(n, y)

	jitter := gp.noiseVar
	for attempt := 0; attempt < 8; attempt++ {
		jittered := gp.pool.getSym(n)
		jittered.CopySym(k)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, jittered.At(i, i)+jitter)
		}

		// The factorization keeps its own storage, so the working matrix
		// goes straight back to the pool.
		var chol mat.Cholesky
		factorized := chol.Factorize(jittered)
		gp.pool.putSym(jittered)
		if !factorized {
			gp.logger.Debug("cholesky factorization failed, increasing jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter))
			jitter *= 10
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, yVec); err != nil {
			jitter *= 10
			continue
		}

		gp.chol = &chol
		gp.alpha = alpha
		return nil
	}

	return optimization.WrapError(
		errors.New("kernel matrix is not positive definite"),
		"surrogate", op, fmt.Sprintf("factorization failed after jitter escalation to %g", jitter))
}

// Predict returns the posterior mean and standard deviation at a point.
func (gp *GP) Predict(point []float64) (mu, sigma float64, err error) {
	const op = "GP.Predict"

	if gp.alpha == nil {
		return 0, 0, optimization.NewError("surrogate", op, "model is not fitted")
	}

	n := len(gp.x)
	kStar := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		kStar.SetVec(i, gp.kernel.Eval(point, gp.x[i]))
	}

	mu = mat.Dot(kStar, gp.alpha)

	// Variance: k(x*,x*) - k*^T K^-1 k*, clamped at zero.
	v := mat.NewVecDense(n, nil)
	if solveErr := gp.chol.SolveVecTo(v, kStar); solveErr != nil {
		return 0, 0, optimization.WrapError(solveErr, "surrogate", op, "variance solve failed")
	}
	variance := gp.kernel.Eval(point, point) + gp.noiseVar - mat.Dot(kStar, v)
	if variance < 0 {
		variance = 0
	}

	return mu, math.Sqrt(variance), nil
}
