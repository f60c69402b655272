package surrogate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatern52(t *testing.T) {
	k := NewMatern52(1.0, 2.0)

	t.Run("zero distance returns signal variance", func(t *testing.T) {
		x := []float64{0.3, -1.2}
		assert.InDelta(t, 2.0, k.Eval(x, x), 1e-12)
	})

	t.Run("symmetric", func(t *testing.T) {
		x1 := []float64{0, 1}
		x2 := []float64{2, -1}
		assert.Equal(t, k.Eval(x1, x2), k.Eval(x2, x1))
	})

	t.Run("decays with distance", func(t *testing.T) {
		origin := []float64{0}
		near := k.Eval(origin, []float64{0.5})
		far := k.Eval(origin, []float64{3})
		assert.Greater(t, near, far)
		assert.Greater(t, far, 0.0)
	})
}

func TestRBF(t *testing.T) {
	k := NewRBF(1.0, 1.0)

	x := []float64{1, 2}
	assert.InDelta(t, 1.0, k.Eval(x, x), 1e-12)
	assert.Greater(t, k.Eval(x, []float64{1.1, 2}), k.Eval(x, []float64{4, 2}))
}

func TestSetHyperparameters(t *testing.T) {
	tests := []struct {
		name    string
		params  []float64
		wantErr bool
	}{
		{"valid", []float64{0.5, 2.0}, false},
		{"wrong count", []float64{1.0}, true},
		{"non-positive length scale", []float64{0, 1}, true},
		{"non-positive variance", []float64{1, -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewMatern52(1, 1)
			err := k.SetHyperparameters(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.params, k.Hyperparameters())
		})
	}
}

func TestKernelConstructorDefaults(t *testing.T) {
	k := NewMatern52(-1, 0)
	assert.Equal(t, []float64{1, 1}, k.Hyperparameters())
}
