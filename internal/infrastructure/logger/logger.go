// Package logger provides the structured logger used across the engine,
// scheduler, and execution manager. It is a thin wrapper over zerolog that
// carries a component name and accepts alternating key/value fields.
package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger tagged with a component name. Level is controlled by
// the LOG_LEVEL environment variable (debug, info, warn, error); default info.
func New(component string) *Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	zl := zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// With returns a child logger with an extra permanent field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Debug logs at debug level with alternating key/value fields.
func (l *Logger) Debug(msg string, fields ...any) {
	withFields(l.zl.Debug(), fields).Msg(msg)
}

// Info logs at info level with alternating key/value fields.
func (l *Logger) Info(msg string, fields ...any) {
	withFields(l.zl.Info(), fields).Msg(msg)
}

// Warn logs at warn level with alternating key/value fields.
func (l *Logger) Warn(msg string, fields ...any) {
	withFields(l.zl.Warn(), fields).Msg(msg)
}

// Error logs at error level with alternating key/value fields.
func (l *Logger) Error(msg string, fields ...any) {
	withFields(l.zl.Error(), fields).Msg(msg)
}

func withFields(ev *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("field_%d", i)
		}
		switch v := fields[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}
