package params

import "sort"

// Assignment maps parameter identifiers to concrete numeric values.
// Nested parameters are stored as nested maps and addressed through Path.
// Assignments follow a copy-on-write discipline: a strategy never mutates
// an assignment another strategy may read; it clones first.
type Assignment map[string]any

// NewAssignment returns an empty assignment.
func NewAssignment() Assignment {
	return make(Assignment)
}

// Get returns the value for a dotted identifier.
func (a Assignment) Get(identifier string) (float64, bool) {
	return ParsePath(identifier).Get(a)
}

// Set stores the value for a dotted identifier.
func (a Assignment) Set(identifier string, value float64) {
	ParsePath(identifier).Set(a, value)
}

// Clone returns a deep copy of the assignment.
func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}
	out := make(Assignment, len(a))
	for k, v := range a {
		if nested, ok := v.(map[string]any); ok {
			out[k] = map[string]any(Assignment(nested).Clone())
		} else {
			out[k] = v
		}
	}
	return out
}

// Flatten returns the assignment as a flat identifier -> value map with
// dotted keys, suitable for evaluation traces and reports.
func (a Assignment) Flatten() map[string]float64 {
	out := make(map[string]float64)
	a.flattenInto("", out)
	return out
}

func (a Assignment) flattenInto(prefix string, out map[string]float64) {
	for k, v := range a {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			Assignment(nested).flattenInto(key, out)
			continue
		}
		if f, ok := toFloat(v); ok {
			out[key] = f
		}
	}
}

// FromFlat builds a nested assignment from a flat dotted-identifier map.
func FromFlat(flat map[string]float64) Assignment {
	a := NewAssignment()
	for identifier, value := range flat {
		a.Set(identifier, value)
	}
	return a
}

// Identifiers returns the sorted dotted identifiers present in the assignment.
func (a Assignment) Identifiers() []string {
	flat := a.Flatten()
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
