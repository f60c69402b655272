// Package params defines the parameter space, dotted-path access and
// assignment types shared by every optimization component.
package params

import "strings"

// Path is an ordered sequence of keys addressing a (possibly nested)
// parameter inside an Assignment. It is parsed once from the dotted
// identifier form ("membership_tier_shares.annual") and reused for every
// lookup, so no component re-splits identifier strings ad hoc.
type Path []string

// ParsePath splits a dotted parameter identifier into a Path.
func ParsePath(identifier string) Path {
	return Path(strings.Split(identifier, "."))
}

// String returns the dotted identifier form of the path.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Get looks up the value addressed by the path. A missing parameter is a
// normal outcome reported through the boolean, never a panic or an error.
func (p Path) Get(a Assignment) (float64, bool) {
	if len(p) == 0 || a == nil {
		return 0, false
	}

	current := map[string]any(a)
	for i, key := range p {
		v, ok := current[key]
		if !ok {
			return 0, false
		}

		if i == len(p)-1 {
			f, ok := toFloat(v)
			return f, ok
		}

		nested, ok := v.(map[string]any)
		if !ok {
			return 0, false
		}
		current = nested
	}

	return 0, false
}

// Set writes the value addressed by the path, creating intermediate maps
// as needed.
func (p Path) Set(a Assignment, value float64) {
	if len(p) == 0 || a == nil {
		return
	}

	current := map[string]any(a)
	for _, key := range p[:len(p)-1] {
		nested, ok := current[key].(map[string]any)
		if !ok {
			nested = make(map[string]any)
			current[key] = nested
		}
		current = nested
	}
	current[p[len(p)-1]] = value
}

// toFloat normalizes the numeric leaf types an assignment may hold.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
