package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/file"
	"github.com/smallnest/stategraph/store/memory"
)

func newMemoryStore() store.CheckpointStore {
	return memory.NewMemoryCheckpointStore()
}

// recordingStore wraps a store, observing saves and optionally failing them.
type recordingStore struct {
	store.CheckpointStore
	onSave  func(*store.Checkpoint)
	saveErr error
}

func (s *recordingStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.onSave != nil {
		s.onSave(cp)
	}
	return s.CheckpointStore.Save(ctx, cp)
}

type citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func reviewGraph(t *testing.T, cps store.CheckpointStore) *Graph {
	t.Helper()

	schema := NewSchema().
		Declare("round", KindInt).
		Declare("score", KindFloat).
		Declare("topic", KindString).
		Declare("sources", KindList, Appending(), WithDecoder(DecodeAs[citation]()))

	g := NewStateGraph(schema)
	g.AddNode("research", UpdateFunc(func(_ context.Context, s State) (State, error) {
		round, _ := GetAs[int](s, "round")
		return State{
			"round":   round + 1,
			"score":   0.5,
			"sources": []any{citation{URL: "https://example.com/a", Title: "A"}},
		}, nil
	}))
	g.AddNode("review", func(_ context.Context, s State) (Result, error) {
		for _, c := range ListOf[citation](s, "sources") {
			if c.URL == "" {
				return Result{}, assert.AnError
			}
		}
		return Interrupt(nil, map[string]any{"question": "publish?"}), nil
	})
	g.AddNode("publish", visitNothing)
	g.AddEdge(START, "research").AddEdge("research", "review").AddEdge("review", "publish").AddEdge("publish", END)

	compiled, err := g.Compile(quiet(), WithCheckpointStore(cps))
	require.NoError(t, err)
	return compiled
}

func visitNothing(context.Context, State) (Result, error) {
	return Continue(nil), nil
}

func TestCheckpoint_ResumeAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := file.NewFileCheckpointStore(dir)
	require.NoError(t, err)

	first := reviewGraph(t, fs)
	suspended, err := first.Run(ctx, "essay/1", State{"topic": "go"})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, suspended.Status)

	// a new process: fresh store handle, freshly compiled graph
	fs2, err := file.NewFileCheckpointStore(dir)
	require.NoError(t, err)
	second := reviewGraph(t, fs2)

	cp, err := second.GetState(ctx, "essay/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any(suspended.State), cp.State)
	assert.Equal(t, suspended.Next, cp.Next)
	assert.Equal(t, suspended.Step, cp.Step)
	assert.Equal(t, map[string]any{"question": "publish?"}, cp.Interrupt)

	sources := ListOf[citation](cp.State, "sources")
	require.Len(t, sources, 1)
	assert.Equal(t, "A", sources[0].Title)

	res, err := second.Run(ctx, "essay/1", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Step)
	assert.Equal(t, 1, res.State["round"])
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := file.NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	compiled := reviewGraph(t, fs)
	snapshot := State{
		"round":   2,
		"score":   0.75,
		"topic":   "checkpoints",
		"sources": []any{citation{URL: "u", Title: "t"}},
	}
	require.NoError(t, fs.Save(ctx, &store.Checkpoint{
		ThreadID: "rt",
		State:    snapshot,
		Next:     []string{"review"},
		Step:     1,
		Status:   store.StatusSuspended,
		Version:  1,
	}))

	cp, err := compiled.GetState(ctx, "rt")
	require.NoError(t, err)
	assert.Equal(t, map[string]any(snapshot), cp.State)
	assert.Equal(t, []string{"review"}, cp.Next)
}

func TestCheckpoint_RoundTripUntypedValues(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, store.RegisterType[citation]("graph_test.citation"))

	fs, err := file.NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	schema := NewSchema().
		Declare("m", KindMap).
		Declare("l", KindList).
		Declare("x", KindAny).
		Declare("ratio", KindFloat)
	g := NewStateGraph(schema)
	g.AddNode("write", UpdateFunc(func(context.Context, State) (State, error) {
		return State{
			"m":     map[string]any{"n": 1, "half": 0.5, "nested": []any{2, "s"}},
			"l":     []any{1, 2, citation{URL: "u", Title: "t"}},
			"x":     7,
			"ratio": 2.0,
		}, nil
	}))
	g.AddEdge(START, "write").AddEdge("write", END)
	compiled, err := g.Compile(quiet(), WithCheckpointStore(fs))
	require.NoError(t, err)

	res, err := compiled.Run(ctx, "untyped", nil)
	require.NoError(t, err)

	cp, err := compiled.GetState(ctx, "untyped")
	require.NoError(t, err)
	assert.Equal(t, map[string]any(res.State), cp.State)
	assert.IsType(t, 0, cp.State["m"].(map[string]any)["n"])
	assert.IsType(t, 0, cp.State["l"].([]any)[0])
	assert.IsType(t, 0, cp.State["x"])
	assert.IsType(t, 0.0, cp.State["ratio"])
}

func TestCheckpoint_DeleteState(t *testing.T) {
	ctx := context.Background()
	compiled := buildCounterLoop(t)

	_, err := compiled.Run(ctx, "gone", nil)
	require.NoError(t, err)

	threads, err := compiled.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, threads)

	require.NoError(t, compiled.DeleteState(ctx, "gone"))
	_, err = compiled.GetState(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NotNil(t, compiled.CheckpointStore())
}

func TestCheckpoint_UnknownNextNode(t *testing.T) {
	ctx := context.Background()
	cps := newMemoryStore()
	compiled := buildCounterLoop(t, WithCheckpointStore(cps))

	require.NoError(t, cps.Save(ctx, &store.Checkpoint{
		ThreadID: "stale",
		State:    map[string]any{"count": 1},
		Next:     []string{"removed"},
		Status:   store.StatusRunning,
	}))

	res, err := compiled.Run(ctx, "stale", nil)
	var unknown *UnknownNodeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "removed", unknown.Node)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestCheckpoint_UndeclaredStoredKey(t *testing.T) {
	ctx := context.Background()
	cps := newMemoryStore()
	compiled := buildCounterLoop(t, WithCheckpointStore(cps))

	require.NoError(t, cps.Save(ctx, &store.Checkpoint{
		ThreadID: "foreign",
		State:    map[string]any{"unexpected": true},
		Next:     []string{"A"},
		Status:   store.StatusRunning,
	}))

	res, err := compiled.Run(ctx, "foreign", nil)
	assert.Nil(t, res)
	var uke *UnknownKeyError
	assert.ErrorAs(t, err, &uke)
}
