// Package store defines the checkpoint contract used by the graph executor and
// hosts its storage backends.
//
// A checkpoint is the single current snapshot of one execution thread: the
// thread's state, the node pointer the run continues with, the step counter and
// the run status. The executor writes it after every step, on interrupts and on
// completion, and reads it when a run is resumed with the same thread id.
//
// Retention is last-write-wins: Save replaces the previous snapshot of the
// thread and nothing is deleted implicitly. Callers that need history snapshot
// externally, and call Delete when a thread is no longer needed.
//
// # Available Implementations
//
//   - store/memory: in-process map, for tests and single-process runs
//   - store/file: one JSON document per thread in a directory
//   - store/redis: Redis keys with an optional TTL
//   - store/postgres: a PostgreSQL table keyed by thread id
//   - store/sqlite: a SQLite table keyed by thread id
//
// Example:
//
//	import "github.com/smallnest/stategraph/store/redis"
//
//	cps := redis.NewRedisCheckpointStore(redis.RedisOptions{
//	    Addr:   "localhost:6379",
//	    Prefix: "reflexion:",
//	    TTL:    24 * time.Hour,
//	})
//
//	g, err := builder.Compile(graph.WithCheckpointStore(cps))
//
// Serializing backends round-trip state through JSON with the shared codec:
// integral numbers come back as int at any depth, and struct types registered
// with RegisterType come back as themselves. The graph schema then restores
// declared value kinds on load (see graph.Schema.Normalize).
//
//	func init() {
//		_ = store.RegisterType[Message]("prebuilt.Message")
//	}
package store
