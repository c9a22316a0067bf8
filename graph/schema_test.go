package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

func testSchema() *Schema {
	return NewSchema().
		Declare("count", KindInt).
		Declare("name", KindString).
		Declare("score", KindFloat).
		Declare("done", KindBool).
		Declare("meta", KindMap).
		Declare("tags", KindList).
		Declare("log", KindList, Appending()).
		Declare("notes", KindList, Appending(), WithDecoder(DecodeAs[note]())).
		Declare("extra", KindAny)
}

func TestSchema_Declare(t *testing.T) {
	t.Run("keys keep declaration order", func(t *testing.T) {
		s := testSchema()
		require.NoError(t, s.Validate())
		assert.Equal(t, []string{"count", "name", "score", "done", "meta", "tags", "log", "notes", "extra"}, s.Keys())

		f, ok := s.Field("log")
		require.True(t, ok)
		assert.Equal(t, Append, f.Strategy)
		assert.Equal(t, KindList, f.Kind)
	})

	t.Run("append on any becomes list", func(t *testing.T) {
		s := NewSchema().Declare("items", KindAny, Appending())
		f, _ := s.Field("items")
		assert.Equal(t, KindList, f.Kind)
	})

	t.Run("invalid declarations", func(t *testing.T) {
		s := NewSchema().
			Declare("", KindInt).
			Declare("x", KindInt).
			Declare("x", KindString).
			Declare("y", KindString, Appending())

		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be empty")
		assert.Contains(t, err.Error(), `"x" declared twice`)
		assert.Contains(t, err.Error(), "append strategy requires a list")
		assert.Equal(t, []string{"x"}, s.Keys())
	})
}

func TestSchema_MergeReplace(t *testing.T) {
	s := testSchema()
	state := State{"count": 1, "name": "old"}

	merged, err := s.Merge(state, State{"count": 2, "done": true})
	require.NoError(t, err)
	assert.Equal(t, State{"count": 2, "name": "old", "done": true}, merged)

	// inputs untouched
	assert.Equal(t, State{"count": 1, "name": "old"}, state)
}

func TestSchema_MergeCoercesKinds(t *testing.T) {
	s := testSchema()

	merged, err := s.Merge(nil, State{
		"count": int64(7),
		"score": 3,
		"tags":  []string{"a", "b"},
		"meta":  map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, merged["count"])
	assert.Equal(t, 3.0, merged["score"])
	assert.Equal(t, []any{"a", "b"}, merged["tags"])
	assert.Equal(t, map[string]any{"k": "v"}, merged["meta"])
}

func TestSchema_MergeAppend(t *testing.T) {
	s := testSchema()

	t.Run("absent value is the identity", func(t *testing.T) {
		merged, err := s.Merge(State{}, State{"log": []string{"x"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"x"}, merged["log"])
	})

	t.Run("order preserved without dedup", func(t *testing.T) {
		state := State{"log": []any{"a", "b"}}
		merged, err := s.Merge(state, State{"log": []any{"b", "c"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "b", "c"}, merged["log"])
		assert.Equal(t, []any{"a", "b"}, state["log"])
	})

	t.Run("no aliasing between versions", func(t *testing.T) {
		base := make([]any, 1, 10)
		base[0] = "a"
		state := State{"log": base}

		first, err := s.Merge(state, State{"log": []any{"b"}})
		require.NoError(t, err)
		second, err := s.Merge(state, State{"log": []any{"c"}})
		require.NoError(t, err)

		assert.Equal(t, []any{"a", "b"}, first["log"])
		assert.Equal(t, []any{"a", "c"}, second["log"])
	})

	t.Run("non sequence update", func(t *testing.T) {
		_, err := s.Merge(State{}, State{"log": "oops"})
		var mte *MergeTypeError
		require.ErrorAs(t, err, &mte)
		assert.Equal(t, "log", mte.Key)
		assert.Equal(t, Append, mte.Strategy)

		_, err = s.Merge(State{}, State{"log": nil})
		assert.ErrorAs(t, err, &mte)
	})

	t.Run("elements decoded", func(t *testing.T) {
		merged, err := s.Merge(State{}, State{"notes": []any{
			note{Author: "a", Text: "hi"},
			map[string]any{"author": "b", "text": "yo"},
		}})
		require.NoError(t, err)
		assert.Equal(t, []any{note{Author: "a", Text: "hi"}, note{Author: "b", Text: "yo"}}, merged["notes"])
	})
}

func TestSchema_MergeErrors(t *testing.T) {
	s := testSchema()

	tests := []struct {
		name   string
		update State
	}{
		{"string for int", State{"count": "1"}},
		{"float for int", State{"count": 1.5}},
		{"int for string", State{"name": 1}},
		{"string for bool", State{"done": "yes"}},
		{"scalar for list", State{"tags": 1}},
		{"slice for map", State{"meta": []any{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Merge(State{}, tt.update)
			var mte *MergeTypeError
			assert.ErrorAs(t, err, &mte)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := s.Merge(State{}, State{"count": 1, "ghost": true})
		var uke *UnknownKeyError
		require.ErrorAs(t, err, &uke)
		assert.Equal(t, "ghost", uke.Key)
	})
}

func TestSchema_MergeDisjointAssociative(t *testing.T) {
	s := testSchema()
	base := State{"count": 1, "log": []any{"start"}, "name": "n"}
	u1 := State{"count": 5, "log": []any{"one"}}
	u2 := State{"name": "m", "tags": []any{"t"}, "done": true}

	step1, err := s.Merge(base, u1)
	require.NoError(t, err)
	sequential, err := s.Merge(step1, u2)
	require.NoError(t, err)

	union := State{}
	for k, v := range u1 {
		union[k] = v
	}
	for k, v := range u2 {
		union[k] = v
	}
	combined, err := s.Merge(base, union)
	require.NoError(t, err)

	assert.Equal(t, combined, sequential)
}

func TestSchema_Normalize(t *testing.T) {
	s := testSchema()
	state := State{
		"count": 3,
		"score": 0.5,
		"log":   []any{"a"},
		"notes": []any{note{Author: "x", Text: "y"}},
		"meta":  map[string]any{"k": 1.0},
		"extra": "anything",
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.IsType(t, float64(0), decoded["count"])

	normalized, err := s.Normalize(decoded)
	require.NoError(t, err)
	assert.Equal(t, state, normalized)

	_, err = s.Normalize(State{"count": 1.25})
	assert.Error(t, err)

	_, err = s.Normalize(State{"ghost": 1})
	var uke *UnknownKeyError
	assert.ErrorAs(t, err, &uke)
}

func TestSchema_Init(t *testing.T) {
	s := testSchema()
	assert.Empty(t, s.Init())
}

func TestState_CloneAndGet(t *testing.T) {
	orig := State{
		"log":  []any{"a"},
		"meta": map[string]any{"k": "v"},
		"n":    1,
	}
	cp := orig.Clone()
	cp["log"].([]any)[0] = "changed"
	cp["meta"].(map[string]any)["k"] = "changed"
	cp["n"] = 2

	assert.Equal(t, []any{"a"}, orig["log"])
	assert.Equal(t, "v", orig["meta"].(map[string]any)["k"])
	assert.Equal(t, 1, orig["n"])

	v, ok := Get(orig, "n")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Get(orig, "missing")
	assert.False(t, ok)
	_, ok = Get(nil, "n")
	assert.False(t, ok)

	n, ok := GetAs[int](orig, "n")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	_, ok = GetAs[string](orig, "n")
	assert.False(t, ok)

	assert.Equal(t, []string{"a"}, ListOf[string](orig, "log"))
	assert.Empty(t, ListOf[string](orig, "missing"))
	assert.Nil(t, State(nil).Clone())
}

func TestKindAndStrategyString(t *testing.T) {
	assert.Equal(t, "list", KindList.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.Equal(t, "append", Append.String())
	assert.Equal(t, "replace", Replace.String())
}
