// Package graph is a stateful workflow engine: nodes read a shared state and
// return partial updates, edges decide which node runs next, and every step is
// checkpointed per thread so runs can be suspended and resumed.
//
// # State and schema
//
// The state is a map declared up front by a Schema. Each key has a Kind and a
// merge Strategy: Replace overwrites, Append concatenates sequences. Updates that
// write undeclared keys fail with *UnknownKeyError, values of the wrong type with
// *MergeTypeError.
//
//	schema := graph.NewSchema().
//		Declare("count", graph.KindInt).
//		Declare("log", graph.KindList, graph.Appending())
//
// # Building a graph
//
//	g := graph.NewStateGraph(schema)
//	g.AddNode("a", graph.UpdateFunc(func(ctx context.Context, s graph.State) (graph.State, error) {
//		n, _ := graph.GetAs[int](s, "count")
//		return graph.State{"count": n + 1}, nil
//	}))
//	g.AddNode("b", noop)
//	g.AddEdge(graph.START, "a")
//	g.AddConditionalEdge("a", func(ctx context.Context, s graph.State) string {
//		if n, _ := graph.GetAs[int](s, "count"); n > 2 {
//			return graph.END
//		}
//		return "b"
//	}, "b", graph.END)
//	g.AddEdge("b", "a")
//
//	compiled, err := g.Compile()
//
// Compile rejects dangling edges, undeclared router targets, unreachable nodes,
// nodes without an outgoing edge and sources mixing fixed and conditional edges.
// All problems are reported together in a *CompileError.
//
// # Running
//
//	res, err := compiled.Run(ctx, "thread-1", graph.State{"count": 0})
//
// A run proceeds in steps. When a node has several fixed edges, its successors
// run concurrently in the next step and their updates are merged in node
// declaration order. A node returning Interrupt suspends the run; calling Run
// again with the same thread id resumes it. WithMaxSteps and WithCycleLimit
// bound cyclic graphs: reaching a bound completes the run with Truncated set.
//
// Checkpoints go to an in-memory store unless WithCheckpointStore selects one
// of the backends under store/.
//
// # Observing
//
// WithObserver receives a StepEvent per executed node, Stream exposes the same
// events on a channel, and NodeListener implementations (LoggingListener,
// MetricsListener, TracingListener) see every node start, completion and error.
// Exporter renders the topology as text, Mermaid or DOT.
package graph
