package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/stategraph/log"
)

func quiet() Option {
	return WithLogger(&log.NoOpLogger{})
}

func counterSchema() *Schema {
	return NewSchema().
		Declare("count", KindInt).
		Declare("log", KindList, Appending()).
		Declare("trace", KindList, Appending())
}

// visit appends the node id to "trace".
func visit(id string) NodeFunc {
	return UpdateFunc(func(context.Context, State) (State, error) {
		return State{"trace": []any{id}}, nil
	})
}

func TestCompile_Valid(t *testing.T) {
	g := NewStateGraph(counterSchema())
	g.AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge(START, "a").
		AddConditionalEdge("a", func(context.Context, State) string { return "b" }, "b", END).
		AddEdge("b", "a")

	compiled, err := g.Compile(quiet())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, compiled.Nodes())

	n, err := compiled.Node("b")
	require.NoError(t, err)
	assert.Equal(t, "b", n.ID)

	_, err = compiled.Node("zzz")
	var unknown *UnknownNodeError
	assert.ErrorAs(t, err, &unknown)
}

func TestCompile_Errors(t *testing.T) {
	router := func(context.Context, State) string { return END }

	tests := []struct {
		name  string
		build func(g *StateGraph)
		check func(t *testing.T, err error)
	}{
		{
			name: "no entry",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).AddEdge("a", END)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoEntry)
			},
		},
		{
			name: "duplicate node",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END)
			},
			check: func(t *testing.T, err error) {
				var dup *DuplicateNodeError
				assert.ErrorAs(t, err, &dup)
			},
		},
		{
			name: "undeclared conditional target",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddConditionalEdge("a", router, "ghost", END)
			},
			check: func(t *testing.T, err error) {
				var dangling *DanglingEdgeError
				require.ErrorAs(t, err, &dangling)
				assert.True(t, dangling.Conditional)
				assert.Equal(t, "ghost", dangling.To)

				var unknown *UnknownNodeError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "ghost", unknown.Node)
			},
		},
		{
			name: "undeclared fixed target",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", "ghost")
			},
			check: func(t *testing.T, err error) {
				var dangling *DanglingEdgeError
				require.ErrorAs(t, err, &dangling)
				assert.False(t, dangling.Conditional)
			},
		},
		{
			name: "undeclared source",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END).AddEdge("ghost", "a")
			},
			check: func(t *testing.T, err error) {
				var unknown *UnknownNodeError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "ghost", unknown.Node)
			},
		},
		{
			name: "ambiguous source",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END).AddConditionalEdge("a", router, END)
			},
			check: func(t *testing.T, err error) {
				var ambiguous *AmbiguousEdgeError
				require.ErrorAs(t, err, &ambiguous)
				assert.Equal(t, "a", ambiguous.Node)
			},
		},
		{
			name: "unreachable node",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).AddNode("island", noop).
					SetEntryPoint("a").AddEdge("a", END).AddEdge("island", END)
			},
			check: func(t *testing.T, err error) {
				var unreachable *UnreachableNodeError
				require.ErrorAs(t, err, &unreachable)
				assert.Equal(t, "island", unreachable.Node)
			},
		},
		{
			name: "dead end",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).AddNode("b", noop).SetEntryPoint("a").AddEdge("a", "b")
			},
			check: func(t *testing.T, err error) {
				var deadEnd *DeadEndError
				require.ErrorAs(t, err, &deadEnd)
				assert.Equal(t, "b", deadEnd.Node)
			},
		},
		{
			name: "edge into START",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", START)
			},
			check: func(t *testing.T, err error) {
				var dangling *DanglingEdgeError
				assert.ErrorAs(t, err, &dangling)
			},
		},
		{
			name: "edge out of END",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END).AddEdge(END, "a")
			},
			check: func(t *testing.T, err error) {
				var invalid *InvalidNodeError
				assert.ErrorAs(t, err, &invalid)
			},
		},
		{
			name: "conditional without targets",
			build: func(g *StateGraph) {
				g.AddNode("a", noop).SetEntryPoint("a").AddConditionalEdge("a", router)
			},
			check: func(t *testing.T, err error) {
				var invalid *InvalidNodeError
				assert.ErrorAs(t, err, &invalid)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewStateGraph(counterSchema())
			tt.build(g)

			compiled, err := g.Compile()
			assert.Nil(t, compiled)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Errs)
			assert.Contains(t, err.Error(), "compile graph: ")
			tt.check(t, err)
		})
	}
}

func TestCompile_SchemaErrors(t *testing.T) {
	g := NewStateGraph(nil)
	g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END)
	_, err := g.Compile()
	assert.ErrorIs(t, err, ErrNoSchema)

	bad := NewSchema().Declare("k", KindInt, Appending())
	g = NewStateGraph(bad)
	g.AddNode("a", noop).SetEntryPoint("a").AddEdge("a", END)
	_, err = g.Compile()
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "append strategy requires a list")
}

func TestCompile_ReportsEveryProblem(t *testing.T) {
	g := NewStateGraph(counterSchema())
	g.AddNode("a", noop).AddNode("b", noop).AddNode("a", noop)
	g.AddEdge(START, "a")
	g.AddEdge("a", "ghost")

	_, err := g.Compile()
	var ce *CompileError
	require.ErrorAs(t, err, &ce)

	var (
		dup         *DuplicateNodeError
		dangling    *DanglingEdgeError
		deadEnd     *DeadEndError
		unreachable *UnreachableNodeError
	)
	assert.True(t, errors.As(err, &dup))
	assert.True(t, errors.As(err, &dangling))
	assert.True(t, errors.As(err, &deadEnd))
	assert.True(t, errors.As(err, &unreachable))
	assert.GreaterOrEqual(t, len(ce.Errs), 4)
}
