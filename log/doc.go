// Package log provides the leveled logging interface used across stategraph.
//
// The default implementation wraps github.com/kataras/golog. Levels, in order of
// increasing severity, are LogLevelDebug, LogLevelInfo, LogLevelWarn and LogLevelError;
// LogLevelNone silences everything.
//
//	logger := log.NewDefaultLogger(log.LogLevelDebug)
//	logger.Info("run %s started", threadID)
//
// Package-level helpers write to a process-wide logger:
//
//	log.SetLogLevel(log.LogLevelWarn)
//	log.Warn("checkpoint for %s is stale", threadID)
//
// NoOpLogger discards all output and is handy in tests.
package log
