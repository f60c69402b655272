// Package surrogate implements surrogate-guided search: a Gaussian
// process fitted to past evaluations proposes each next candidate by
// maximizing expected improvement.
package surrogate

import (
	"fmt"
	"math"
)

// Kernel is a covariance function over points in the search space.
type Kernel interface {
	// Eval computes the kernel value between two points.
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters.
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters.
	SetHyperparameters(params []float64) error
}

func squaredDistance(x1, x2 []float64) float64 {
	sum := 0.0
	for i := range x1 {
		d := x1[i] - x2[i]
		sum += d * d
	}
	return sum
}

func validateKernelParams(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("hyperparameters must be positive, got %v", params)
	}
	return nil
}

// Matern52 is the Matérn 5/2 kernel, the default surrogate covariance.
// It produces twice-differentiable sample paths, rough enough for
// business objectives with plateaus and kinks.
type Matern52 struct {
	// Length scale parameter (larger = smoother function)
	lengthScale float64
	// Signal variance (controls the amplitude of the function)
	signalVar float64
}

// NewMatern52 creates a Matérn 5/2 kernel. Non-positive parameters fall
// back to 1.
func NewMatern52(lengthScale, signalVar float64) *Matern52 {
	if lengthScale <= 0 {
		lengthScale = 1
	}
	if signalVar <= 0 {
		signalVar = 1
	}
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(squaredDistance(x1, x2)) / k.lengthScale
	poly := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	return k.signalVar * poly * math.Exp(-math.Sqrt(5)*r)
}

// Hyperparameters returns the current hyperparameters.
func (k *Matern52) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets the kernel's hyperparameters.
func (k *Matern52) SetHyperparameters(params []float64) error {
	if err := validateKernelParams(params); err != nil {
		return err
	}
	k.lengthScale = params[0]
	k.signalVar = params[1]
	return nil
}

// RBF is the squared exponential kernel, an alternative for smooth
// objectives.
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF creates an RBF kernel. Non-positive parameters fall back to 1.
func NewRBF(lengthScale, signalVar float64) *RBF {
	if lengthScale <= 0 {
		lengthScale = 1
	}
	if signalVar <= 0 {
		signalVar = 1
	}
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the RBF kernel value between x1 and x2.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	r2 := squaredDistance(x1, x2) / (2.0 * k.lengthScale * k.lengthScale)
	return k.signalVar * math.Exp(-r2)
}

// Hyperparameters returns the current hyperparameters.
func (k *RBF) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets the kernel's hyperparameters.
func (k *RBF) SetHyperparameters(params []float64) error {
	if err := validateKernelParams(params); err != nil {
		return err
	}
	k.lengthScale = params[0]
	k.signalVar = params[1]
	return nil
}
