// Package redis provides a Redis-backed checkpoint store.
//
// Each thread's checkpoint is a JSON document under "<prefix>checkpoint:<thread>";
// the set "<prefix>threads" indexes the thread ids. A TTL, when configured, applies
// to every checkpoint key so abandoned threads expire on their own.
//
//	cps := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr: "localhost:6379",
//		TTL:  24 * time.Hour,
//	})
package redis
