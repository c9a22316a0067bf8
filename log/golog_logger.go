package log

import (
	"github.com/kataras/golog"
)

var gologLevels = map[LogLevel]golog.Level{
	LogLevelDebug: golog.DebugLevel,
	LogLevelInfo:  golog.InfoLevel,
	LogLevelWarn:  golog.WarnLevel,
	LogLevelError: golog.ErrorLevel,
	LogLevelNone:  golog.DisableLevel,
}

// GologLogger adapts a golog.Logger to Logger. Messages below the adapter level
// are dropped before formatting.
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at LogLevelInfo. The wrapped
// logger's level is left untouched until SetLevel is called.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger, level: LogLevelInfo}
}

func (l *GologLogger) Debug(format string, v ...any) { l.logf(LogLevelDebug, format, v) }

func (l *GologLogger) Info(format string, v ...any) { l.logf(LogLevelInfo, format, v) }

func (l *GologLogger) Warn(format string, v ...any) { l.logf(LogLevelWarn, format, v) }

func (l *GologLogger) Error(format string, v ...any) { l.logf(LogLevelError, format, v) }

func (l *GologLogger) logf(level LogLevel, format string, v []any) {
	if level < l.level || l.level == LogLevelNone {
		return
	}
	l.logger.Logf(gologLevels[level], format, v...)
}

// Named returns a logger writing through a golog child whose prefix is
// extended with name. Children are cached by name and inherit the current level.
func (l *GologLogger) Named(name string) *GologLogger {
	child := &GologLogger{logger: l.logger.Child(name), level: l.level}
	child.logger.Level = gologLevels[l.level]
	return child
}

// SetLevel sets the level of the adapter and of the wrapped golog logger.
// Unknown levels fall back to LogLevelInfo.
func (l *GologLogger) SetLevel(level LogLevel) {
	gl, ok := gologLevels[level]
	if !ok {
		level, gl = LogLevelInfo, golog.InfoLevel
	}
	l.level = level
	l.logger.Level = gl
}

// GetLevel returns the current log level
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
