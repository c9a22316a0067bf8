// Stategraph - Stateful Workflow Graphs in Go
//
// Stategraph runs workflows described as directed graphs over a shared, typed
// state. Nodes return partial updates that are merged by per-key strategies,
// edges are fixed or chosen by a router at run time, and every step of a run is
// checkpointed so a thread can be suspended for human input, survive a restart
// and resume where it stopped.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/stategraph
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/stategraph/graph"
//	)
//
//	func main() {
//		schema := graph.NewSchema().
//			Declare("count", graph.KindInt).
//			Declare("trace", graph.KindList, graph.Appending())
//
//		g := graph.NewStateGraph(schema)
//		g.AddNode("inc", graph.UpdateFunc(func(ctx context.Context, s graph.State) (graph.State, error) {
//			n, _ := graph.GetAs[int](s, "count")
//			return graph.State{"count": n + 1, "trace": []any{"inc"}}, nil
//		}))
//		g.AddEdge(graph.START, "inc")
//		g.AddConditionalEdge("inc", func(ctx context.Context, s graph.State) string {
//			if n, _ := graph.GetAs[int](s, "count"); n >= 3 {
//				return graph.END
//			}
//			return "inc"
//		}, "inc", graph.END)
//
//		runnable, err := g.Compile()
//		if err != nil {
//			panic(err)
//		}
//
//		res, err := runnable.Run(context.Background(), "counter", nil)
//		if err != nil {
//			panic(err)
//		}
//		fmt.Println(res.State["count"]) // 3
//	}
//
// # Packages
//
//   - graph: schema, graph construction, compilation and execution
//   - store: the checkpoint model and its memory, file, redis, postgres and sqlite backends
//   - config: YAML configuration of run limits, logging and the checkpoint backend
//   - log: leveled logging backed by golog
//   - prebuilt: ready-made graphs such as the reflexion loop
//
// # Human in the Loop
//
// A node suspends its thread by returning graph.Interrupt. The run result and the
// stored checkpoint carry the interrupt value; calling Run again on the same
// thread resumes it, optionally merging the reviewer's input first:
//
//	res, _ := runnable.Run(ctx, "deploy-42", graph.State{"input": "Deploy"})
//	// res.Status == graph.StatusSuspended
//	res, _ = runnable.Run(ctx, "deploy-42", graph.State{"approved": true})
//
// # Observability
//
// Runs accept listeners for node events. graph.NewLoggingListener,
// graph.NewMetricsListener (Prometheus) and graph.NewTracingListener
// (OpenTelemetry) cover the usual backends; graph.Stream delivers one event per
// executed node on a channel.
package stategraph // import "github.com/smallnest/stategraph"
