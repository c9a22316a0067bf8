package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Kind is the declared value type of a state key.
type Kind int

const (
	// KindAny accepts any value.
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	// KindList holds an ordered sequence, stored as []any.
	KindList
	// KindMap holds a nested mapping, stored as map[string]any.
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Strategy defines how an update value is merged into the current value of a key.
type Strategy int

const (
	// Replace overwrites the current value. It is the default.
	Replace Strategy = iota
	// Append concatenates the update sequence onto the current sequence.
	Append
)

func (s Strategy) String() string {
	switch s {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ElemDecoder converts a list element, typically one decoded from JSON, back
// into the Go type nodes expect.
type ElemDecoder func(v any) (any, error)

// DecodeAs returns an ElemDecoder producing values of type T. Values that already
// are a T pass through; anything else is re-marshaled through JSON.
func DecodeAs[T any]() ElemDecoder {
	return func(v any) (any, error) {
		if t, ok := v.(T); ok {
			return t, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Field is the declaration of one state key.
type Field struct {
	Key      string
	Kind     Kind
	Strategy Strategy
	Decode   ElemDecoder
}

// FieldOption customizes a Field at declaration time.
type FieldOption func(*Field)

// Appending selects the Append strategy. The key's kind becomes KindList.
func Appending() FieldOption {
	return func(f *Field) {
		f.Strategy = Append
	}
}

// WithDecoder sets the element decoder of a list key.
func WithDecoder(dec ElemDecoder) FieldOption {
	return func(f *Field) {
		f.Decode = dec
	}
}

// Schema is the declared set of state keys with their kinds and merge strategies.
// Declare keys while building the graph; the schema must not change once a
// compiled graph uses it.
type Schema struct {
	fields []Field
	index  map[string]int
	errs   []error
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{index: make(map[string]int)}
}

// Declare adds a key to the schema. Declaration problems are reported by Validate
// and by Compile.
func (s *Schema) Declare(key string, kind Kind, opts ...FieldOption) *Schema {
	f := Field{Key: key, Kind: kind}
	for _, opt := range opts {
		opt(&f)
	}

	switch {
	case key == "":
		s.errs = append(s.errs, errors.New("state key must not be empty"))
		return s
	case f.Strategy == Append && f.Kind == KindAny:
		f.Kind = KindList
	case f.Strategy == Append && f.Kind != KindList:
		s.errs = append(s.errs, fmt.Errorf("state key %q: append strategy requires a list, got %s", key, f.Kind))
		return s
	}

	if _, dup := s.index[key]; dup {
		s.errs = append(s.errs, fmt.Errorf("state key %q declared twice", key))
		return s
	}
	s.index[key] = len(s.fields)
	s.fields = append(s.fields, f)
	return s
}

// Validate reports declaration errors.
func (s *Schema) Validate() error {
	return errors.Join(s.errs...)
}

// Keys returns the declared keys in declaration order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

// Field returns the declaration of key.
func (s *Schema) Field(key string) (Field, bool) {
	i, ok := s.index[key]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Init returns the initial state. Keys stay absent until a node writes them.
func (s *Schema) Init() State {
	return State{}
}

// Merge applies update to state and returns the merged state. Neither argument
// is modified. Keys missing from update keep their value; a missing current value
// acts as the identity for the key's strategy.
func (s *Schema) Merge(state, update State) (State, error) {
	result := make(State, len(state)+len(update))
	maps.Copy(result, state)

	for _, key := range slices.Sorted(maps.Keys(update)) {
		f, ok := s.Field(key)
		if !ok {
			return nil, &UnknownKeyError{Key: key}
		}
		v := update[key]

		switch f.Strategy {
		case Append:
			current, err := f.coerceList(result[key], true)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, f.typeError(v)
			}
			items, err := f.coerceList(v, false)
			if err != nil {
				return nil, err
			}
			merged := make([]any, 0, len(current)+len(items))
			merged = append(merged, current...)
			merged = append(merged, items...)
			result[key] = merged
		default:
			coerced, err := f.coerce(v, false)
			if err != nil {
				return nil, err
			}
			result[key] = coerced
		}
	}

	return result, nil
}

// Normalize converts values of a state loaded from a serialized form back to
// their declared kinds: integral numbers become ints or floats as declared,
// lists become []any with decoded elements. The bundled stores already restore
// nested integers and registered types (see store.RegisterType). Undeclared
// keys are rejected.
func (s *Schema) Normalize(state State) (State, error) {
	result := make(State, len(state))
	for _, key := range slices.Sorted(maps.Keys(state)) {
		f, ok := s.Field(key)
		if !ok {
			return nil, &UnknownKeyError{Key: key}
		}
		v, err := f.coerce(state[key], true)
		if err != nil {
			return nil, err
		}
		result[key] = v
	}
	return result, nil
}

func (f Field) typeError(v any) error {
	return &MergeTypeError{Key: f.Key, Kind: f.Kind, Strategy: f.Strategy, Value: v}
}

// coerce checks v against the field kind and returns the stored form.
// lenient accepts integral floats for int keys, as produced by JSON decoding.
func (f Field) coerce(v any, lenient bool) (any, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	switch f.Kind {
	case KindAny:
		return v, nil
	case KindString:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case KindBool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case KindInt:
		if n, ok := toInt(rv, lenient); ok {
			return n, nil
		}
	case KindFloat:
		switch {
		case rv.CanFloat():
			return rv.Float(), nil
		case rv.CanInt():
			return float64(rv.Int()), nil
		case rv.CanUint():
			return float64(rv.Uint()), nil
		}
	case KindList:
		return f.coerceList(v, false)
	case KindMap:
		if m, ok := toMap(rv); ok {
			return m, nil
		}
	}
	return nil, f.typeError(v)
}

// coerceList returns a fresh []any holding the (decoded) elements of v.
func (f Field) coerceList(v any, allowNil bool) ([]any, error) {
	if v == nil {
		if allowNil {
			return nil, nil
		}
		return nil, f.typeError(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, f.typeError(v)
	}

	out := make([]any, rv.Len())
	for i := range rv.Len() {
		elem := rv.Index(i).Interface()
		if f.Decode != nil {
			decoded, err := f.Decode(elem)
			if err != nil {
				return nil, fmt.Errorf("state key %q element %d: %w", f.Key, i, err)
			}
			elem = decoded
		}
		out[i] = elem
	}
	return out, nil
}

func toInt(rv reflect.Value, lenient bool) (int, bool) {
	switch {
	case rv.CanInt():
		n := rv.Int()
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case rv.CanUint():
		n := rv.Uint()
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case lenient && rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt || f > math.MaxInt {
			return 0, false
		}
		return int(f), true
	case lenient && rv.Type() == reflect.TypeOf(json.Number("")):
		n, err := rv.Interface().(json.Number).Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toMap(rv reflect.Value) (map[string]any, bool) {
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
