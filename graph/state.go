package graph

// State is the shared data a graph run operates on. Node outputs are partial
// States that the schema merges into the current one.
type State map[string]any

// Clone returns a copy of the state. Nested []any and map[string]any values are
// copied as well, so writes to the clone never reach the original.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = cloneValue(e)
		}
		return cp
	case State:
		return t.Clone()
	default:
		return v
	}
}

// Get returns the value stored under key. Missing keys and nil states report false.
func Get(state State, key string) (any, bool) {
	if state == nil {
		return nil, false
	}
	v, ok := state[key]
	return v, ok
}

// GetAs returns the value under key converted to T, reporting false when the key
// is missing or holds a different type.
func GetAs[T any](state State, key string) (T, bool) {
	var zero T
	v, ok := Get(state, key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ListOf returns the elements of a list key that have type T, in order.
func ListOf[T any](state State, key string) []T {
	items, _ := GetAs[[]any](state, key)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if t, ok := item.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
