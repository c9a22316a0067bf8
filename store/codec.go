package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sync"
)

const (
	typeKey  = "_type"
	valueKey = "_value"
)

// TypeRegistry maps Go struct types to stable names so checkpoint values of
// those types survive a JSON round trip. A registered value is written as
// {"_type": name, "_value": value} and decoded back into its type on load.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	names  map[reflect.Type]string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]reflect.Type),
		names:  make(map[reflect.Type]string),
	}
}

var defaultRegistry = NewTypeRegistry()

// DefaultTypeRegistry returns the registry used by the bundled stores.
func DefaultTypeRegistry() *TypeRegistry {
	return defaultRegistry
}

// RegisterType registers T under name in the default registry. Register types
// from init functions, before any checkpoint is loaded.
func RegisterType[T any](name string) error {
	return defaultRegistry.Register(reflect.TypeFor[T](), name)
}

// Register adds t under name. t must be a struct or a pointer to a struct.
// Registering the same pair twice is a no-op.
func (r *TypeRegistry) Register(t reflect.Type, name string) error {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return fmt.Errorf("type %s must be a struct or pointer to struct", t)
	}
	if name == "" {
		return fmt.Errorf("type %s: name must not be empty", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.names[t]; ok && existing != name {
		return fmt.Errorf("type %s already registered as %s", t, existing)
	}
	if existing, ok := r.byName[name]; ok && existing != t {
		return fmt.Errorf("name %s already registered for %s", name, existing)
	}
	r.byName[name] = t
	r.names[t] = name
	return nil
}

// Lookup returns the type registered under name.
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *TypeRegistry) nameOf(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[t]
	return name, ok
}

// Marshal encodes v as JSON, wrapping registered values found in nested maps
// and slices.
func (r *TypeRegistry) Marshal(v any) ([]byte, error) {
	return json.Marshal(r.wrap(v))
}

// Unmarshal decodes JSON produced by Marshal. Registered values come back as
// their Go type; integral numbers come back as int, other numbers as float64.
func (r *TypeRegistry) Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return r.unwrap(raw)
}

func (r *TypeRegistry) wrap(v any) any {
	if v == nil {
		return nil
	}
	if name, ok := r.nameOf(reflect.TypeOf(v)); ok {
		return map[string]any{typeKey: name, valueKey: v}
	}

	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.wrap(e)
		}
		return out
	case map[string]any:
		return r.wrapMap(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 || (rv.Kind() == reflect.Slice && rv.IsNil()) {
			return v
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = r.wrap(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = r.wrap(iter.Value().Interface())
		}
		return out
	}
	return v
}

func (r *TypeRegistry) wrapMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = r.wrap(e)
	}
	return out
}

func (r *TypeRegistry) unwrap(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return number(t)
	case []any:
		for i, e := range t {
			u, err := r.unwrap(e)
			if err != nil {
				return nil, err
			}
			t[i] = u
		}
		return t, nil
	case map[string]any:
		if name, raw, ok := envelope(t); ok {
			return r.instance(name, raw)
		}
		return r.unwrapMap(t)
	}
	return v, nil
}

func (r *TypeRegistry) unwrapMap(m map[string]any) (map[string]any, error) {
	for k, e := range m {
		u, err := r.unwrap(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		m[k] = u
	}
	return m, nil
}

func (r *TypeRegistry) instance(name string, raw any) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown type: %s", name)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	ptr := t.Kind() == reflect.Pointer
	base := t
	if ptr {
		base = t.Elem()
	}
	inst := reflect.New(base)
	if err := json.Unmarshal(data, inst.Interface()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	if ptr {
		return inst.Interface(), nil
	}
	return inst.Elem().Interface(), nil
}

// envelope reports whether m is a wrapped registered value.
func envelope(m map[string]any) (string, any, bool) {
	if len(m) != 2 {
		return "", nil, false
	}
	name, ok := m[typeKey].(string)
	if !ok {
		return "", nil, false
	}
	raw, ok := m[valueKey]
	return name, raw, ok
}

func number(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return f, nil
}

// MarshalValue encodes v with the default registry.
func MarshalValue(v any) ([]byte, error) {
	return defaultRegistry.Marshal(v)
}

// UnmarshalValue decodes data written by MarshalValue.
func UnmarshalValue(data []byte) (any, error) {
	return defaultRegistry.Unmarshal(data)
}

// UnmarshalMap decodes a JSON object written by MarshalValue. JSON null gives a nil map.
func UnmarshalMap(data []byte) (map[string]any, error) {
	v, err := UnmarshalValue(data)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return m, nil
}

type checkpointJSON Checkpoint

// MarshalJSON encodes the checkpoint with the default registry so registered
// state values keep their type.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	p := checkpointJSON(c)
	p.State = defaultRegistry.wrapMap(c.State)
	p.Metadata = defaultRegistry.wrapMap(c.Metadata)
	p.Interrupt = defaultRegistry.wrap(c.Interrupt)
	return json.Marshal(p)
}

// UnmarshalJSON decodes a checkpoint written by MarshalJSON.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p checkpointJSON
	if err := dec.Decode(&p); err != nil {
		return err
	}

	var err error
	if p.State, err = defaultRegistry.unwrapMap(p.State); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if p.Metadata, err = defaultRegistry.unwrapMap(p.Metadata); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if p.Interrupt, err = defaultRegistry.unwrap(p.Interrupt); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}
	*c = Checkpoint(p)
	return nil
}
