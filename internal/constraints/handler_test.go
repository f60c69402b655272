package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast/fincast/internal/params"
)

func newTestHandler() *Handler {
	h := NewHandler()
	h.AddBoundary("a", params.Bounds{Min: 0, Max: 1})
	h.AddBoundary("b", params.Bounds{Min: 0, Max: 1})
	h.AddBoundary("c", params.Bounds{Min: 0, Max: 1})
	h.AddSumToTarget("abc distribution", []string{"a", "b", "c"}, 1.0)
	return h
}

func TestValidateBoundary(t *testing.T) {
	h := newTestHandler()

	a := params.FromFlat(map[string]float64{"a": 1.5, "b": 0.2, "c": 0.3})
	valid, violations := h.Validate(a)

	assert.False(t, valid)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], `"a"`)
}

func TestValidateSkipsMissingParams(t *testing.T) {
	h := newTestHandler()

	// Only "a" is present, so the sum constraint and the other boundaries
	// must be skipped rather than flagged.
	a := params.FromFlat(map[string]float64{"a": 0.4})
	valid, violations := h.Validate(a)

	assert.True(t, valid)
	assert.Empty(t, violations)
}

func TestRepairClampsBoundaries(t *testing.T) {
	h := NewHandler()
	h.AddBoundary("x", params.Bounds{Min: 0, Max: 10})

	repaired := h.Repair(params.FromFlat(map[string]float64{"x": 42}))

	v, ok := repaired.Get("x")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestRepairRescalesSumToTarget(t *testing.T) {
	h := newTestHandler()

	repaired := h.Repair(params.FromFlat(map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}))

	flat := repaired.Flatten()
	assert.InDelta(t, 1.0/3.0, flat["a"], 1e-9)
	assert.InDelta(t, 1.0/3.0, flat["b"], 1e-9)
	assert.InDelta(t, 1.0/3.0, flat["c"], 1e-9)

	valid, violations := h.Validate(repaired)
	assert.True(t, valid, "repaired assignment should validate: %v", violations)
}

func TestRepairZeroSumSplitsUniformly(t *testing.T) {
	h := newTestHandler()

	repaired := h.Repair(params.FromFlat(map[string]float64{"a": 0, "b": 0, "c": 0}))

	flat := repaired.Flatten()
	for _, name := range []string{"a", "b", "c"} {
		assert.InDelta(t, 1.0/3.0, flat[name], 1e-9, name)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	h := newTestHandler()

	inputs := []map[string]float64{
		{"a": 0.5, "b": 0.5, "c": 0.5},
		{"a": 1.4, "b": -0.3, "c": 0.1},
		{"a": 0.2, "b": 0.3, "c": 0.5}, // already valid
	}

	for _, input := range inputs {
		once := h.Repair(params.FromFlat(input))
		twice := h.Repair(once)
		assert.Equal(t, once.Flatten(), twice.Flatten())
	}
}

func TestRepairDoesNotMutateInput(t *testing.T) {
	h := newTestHandler()
	original := params.FromFlat(map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5})

	_ = h.Repair(original)

	v, _ := original.Get("a")
	assert.Equal(t, 0.5, v)
}

func TestRelationalConstraintReportedNotRepaired(t *testing.T) {
	space := params.Space{
		"price_annual_member":     {Min: 15, Max: 60},
		"price_three_year_member": {Min: 40, Max: 150},
		"price_five_year_member":  {Min: 60, Max: 200},
	}
	h := NewBusinessHandler(space)

	// Annual 20/year but three-year plan at 50/year breaks monotonic pricing.
	a := params.FromFlat(map[string]float64{
		"price_annual_member":     20,
		"price_three_year_member": 150,
		"price_five_year_member":  100,
	})

	valid, violations := h.Validate(a)
	assert.False(t, valid)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "monotonic membership pricing")

	// Repair leaves relational violations untouched.
	repaired := h.Repair(a)
	stillValid, _ := h.Validate(repaired)
	assert.False(t, stillValid)
}

func TestBusinessHandlerDistributions(t *testing.T) {
	h := NewBusinessHandler(params.Space{})

	a := params.FromFlat(map[string]float64{
		"payment_share.per_use":    0.8,
		"payment_share.membership": 0.8,
	})

	repaired := h.Repair(a)
	flat := repaired.Flatten()
	assert.InDelta(t, 0.5, flat["payment_share.per_use"], 1e-9)
	assert.InDelta(t, 0.5, flat["payment_share.membership"], 1e-9)
}

func TestBusinessHandlerTightensShareBounds(t *testing.T) {
	// Share and rate parameters are proportions even when the space
	// declares a wider numeric range.
	h := NewBusinessHandler(params.Space{
		"promo_share":         {Min: 0, Max: 5},
		"renewal_rate_member": {Min: -1, Max: 2},
	})

	repaired := h.Repair(params.FromFlat(map[string]float64{
		"promo_share":         3.0,
		"renewal_rate_member": -0.5,
	}))

	flat := repaired.Flatten()
	assert.LessOrEqual(t, flat["promo_share"], 1.0)
	assert.GreaterOrEqual(t, flat["renewal_rate_member"], 0.0)

	valid, violations := h.Validate(repaired)
	assert.True(t, valid, "repaired shares should validate: %v", violations)
}

func TestReportListsConstraints(t *testing.T) {
	h := newTestHandler()
	report := h.Report()

	assert.Contains(t, report, "abc distribution")
	assert.Contains(t, report, "a: [0, 1]")
}
