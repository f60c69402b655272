// Package constraints validates and repairs parameter assignments against
// boundary, sum-to-target and relational constraints before candidates are
// handed to the objective evaluator.
package constraints

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fincast/fincast/internal/params"
)

// DefaultTolerance is the allowed deviation for sum-to-target constraints.
const DefaultTolerance = 1e-6

// Predicate checks a relational constraint over an assignment. It is only
// invoked when every involved identifier is present.
type Predicate func(params.Assignment) bool

type sumConstraint struct {
	Name       string
	Params     []string
	TargetSum  float64
}

type relationalConstraint struct {
	Name        string
	Description string
	Params      []string
	Check       Predicate
}

// Handler holds a registered constraint set and applies it to assignments.
// Validate and Repair are pure with respect to the registered set: the same
// input always produces the same output, and repairing an already-valid
// assignment returns it unchanged.
type Handler struct {
	boundaries map[string]params.Bounds
	sums       []sumConstraint
	relations  []relationalConstraint
	tolerance  float64
}

// NewHandler returns a handler with an empty constraint set.
func NewHandler() *Handler {
	return &Handler{
		boundaries: make(map[string]params.Bounds),
		tolerance:  DefaultTolerance,
	}
}

// AddBoundary registers a boundary constraint for one parameter. An existing
// boundary for the same identifier is replaced.
func (h *Handler) AddBoundary(identifier string, b params.Bounds) {
	h.boundaries[identifier] = b
}

// AddBoundaries registers boundary constraints for a whole parameter space.
func (h *Handler) AddBoundaries(space params.Space) {
	for name, b := range space {
		h.boundaries[name] = b
	}
}

// AddSumToTarget registers a constraint requiring the named parameters to
// sum to target within the handler's tolerance.
func (h *Handler) AddSumToTarget(name string, identifiers []string, target float64) {
	if name == "" {
		name = fmt.Sprintf("sum constraint %d", len(h.sums)+1)
	}
	group := make([]string, len(identifiers))
	copy(group, identifiers)
	h.sums = append(h.sums, sumConstraint{Name: name, Params: group, TargetSum: target})
}

// AddRelational registers a predicate constraint over the named parameters.
// Relational constraints are reported by Validate but never auto-repaired.
func (h *Handler) AddRelational(name, description string, identifiers []string, check Predicate) {
	group := make([]string, len(identifiers))
	copy(group, identifiers)
	h.relations = append(h.relations, relationalConstraint{
		Name:        name,
		Description: description,
		Params:      group,
		Check:       check,
	})
}

// Validate checks every registered constraint. A constraint referencing an
// identifier missing from the assignment is skipped, not flagged.
func (h *Handler) Validate(a params.Assignment) (bool, []string) {
	var violations []string

	for _, name := range h.boundaryNames() {
		b := h.boundaries[name]
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		if value < b.Min || value > b.Max {
			violations = append(violations,
				fmt.Sprintf("parameter %q value %v outside bounds [%v, %v]", name, value, b.Min, b.Max))
		}
	}

	for _, c := range h.sums {
		values, complete := h.collectGroup(a, c.Params)
		if !complete {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if math.Abs(sum-c.TargetSum) > h.tolerance {
			violations = append(violations,
				fmt.Sprintf("%s: parameters sum to %.4f, expected %v", c.Name, sum, c.TargetSum))
		}
	}

	for _, c := range h.relations {
		if _, complete := h.collectGroup(a, c.Params); !complete {
			continue
		}
		if !c.Check(a) {
			msg := c.Description
			if msg == "" {
				msg = "constraint violated"
			}
			violations = append(violations, fmt.Sprintf("%s: %s", c.Name, msg))
		}
	}

	return len(violations) == 0, violations
}

// Repair returns a copy of the assignment with boundary and sum-to-target
// violations fixed. Boundary violations are clamped. Sum violations are
// repaired by proportional rescaling (or a uniform split when the current
// sum is zero), with every rescaled value re-clamped to its own boundary.
// Relational violations have no general repair and are left as-is.
func (h *Handler) Repair(a params.Assignment) params.Assignment {
	repaired := a.Clone()

	for name, b := range h.boundaries {
		value, ok := repaired.Get(name)
		if !ok {
			continue
		}
		if value < b.Min || value > b.Max {
			repaired.Set(name, b.Clamp(value))
		}
	}

	for _, c := range h.sums {
		h.repairSum(repaired, c)
	}

	return repaired
}

func (h *Handler) repairSum(a params.Assignment, c sumConstraint) {
	present := make([]string, 0, len(c.Params))
	values := make([]float64, 0, len(c.Params))
	sum := 0.0
	for _, name := range c.Params {
		v, ok := a.Get(name)
		if !ok {
			continue
		}
		present = append(present, name)
		values = append(values, v)
		sum += v
	}
	if len(present) == 0 || math.Abs(sum-c.TargetSum) <= h.tolerance {
		return
	}

	if sum > 0 {
		scale := c.TargetSum / sum
		for i, name := range present {
			a.Set(name, h.clampToBoundary(name, values[i]*scale))
		}
		return
	}

	split := c.TargetSum / float64(len(present))
	for _, name := range present {
		a.Set(name, h.clampToBoundary(name, split))
	}
}

func (h *Handler) clampToBoundary(name string, v float64) float64 {
	if b, ok := h.boundaries[name]; ok {
		return b.Clamp(v)
	}
	return v
}

func (h *Handler) collectGroup(a params.Assignment, identifiers []string) ([]float64, bool) {
	values := make([]float64, 0, len(identifiers))
	for _, name := range identifiers {
		v, ok := a.Get(name)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

func (h *Handler) boundaryNames() []string {
	names := make([]string, 0, len(h.boundaries))
	for name := range h.boundaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report renders the registered constraint set as a human-readable summary.
func (h *Handler) Report() string {
	var b strings.Builder
	b.WriteString("Constraint configuration\n\nBoundary constraints:\n")
	if len(h.boundaries) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, name := range h.boundaryNames() {
		bounds := h.boundaries[name]
		fmt.Fprintf(&b, "  %s: [%v, %v]\n", name, bounds.Min, bounds.Max)
	}

	b.WriteString("\nSum-to-target constraints:\n")
	if len(h.sums) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, c := range h.sums {
		fmt.Fprintf(&b, "  %s: %s -> %v\n", c.Name, strings.Join(c.Params, ", "), c.TargetSum)
	}

	b.WriteString("\nRelational constraints:\n")
	if len(h.relations) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, c := range h.relations {
		fmt.Fprintf(&b, "  %s: %s (%s)\n", c.Name, c.Description, strings.Join(c.Params, ", "))
	}

	return b.String()
}
