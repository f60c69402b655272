package params

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Bounds is the admissible numeric range for one parameter.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Width returns the size of the range.
func (b Bounds) Width() float64 {
	return b.Max - b.Min
}

// Clamp projects a value onto the bounds.
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Space maps parameter identifiers (dotted paths for nested parameters)
// to their bounds. It is the read-only input shared by every strategy run.
type Space map[string]Bounds

// Validate rejects empty spaces and inverted bounds.
func (s Space) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("parameter space is empty")
	}
	for name, b := range s {
		if b.Min > b.Max {
			return fmt.Errorf("parameter %q has min %v greater than max %v", name, b.Min, b.Max)
		}
	}
	return nil
}

// Names returns the parameter identifiers in a fixed, sorted order so that
// deterministic strategies enumerate dimensions reproducibly.
func (s Space) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntegerCount returns how many parameters are inferred to be integer-valued.
func (s Space) IntegerCount() int {
	n := 0
	for name, b := range s {
		if IsIntegerParam(name, b) {
			n++
		}
	}
	return n
}

// IsIntegerParam reports whether a parameter is treated as integer-valued.
// The inference is heuristic: count-like identifiers are integers, as are
// narrow ranges with integral endpoints.
func IsIntegerParam(name string, b Bounds) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"clients", "count", "per_period", "per_half_year", "n_"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if b.Min == math.Trunc(b.Min) && b.Max == math.Trunc(b.Max) && b.Max-b.Min < 20 {
		return true
	}
	return false
}
