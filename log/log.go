// Package log provides structured logging for the avb verification library.
// A Logger carries the name of the verified-boot subsystem emitting it
// (verify, aftl, avbverify, ...) and stamps that name onto every record, so
// interleaved output from one boot attempt stays attributable.
//
// Bootloader integrations that route messages through their own console
// should install a custom handler with NewWithHandler and SetDefault.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger emits structured records tagged with a subsystem name.
type Logger struct {
	module string
	inner  *slog.Logger
}

// defaultLogger backs the package-level convenience functions.
var defaultLogger = New(slog.LevelInfo)

// New creates a Logger that writes JSON to stderr at the given level.
func New(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return NewWithHandler(h)
}

// NewWithHandler creates a Logger backed by the supplied slog.Handler. This
// is useful for testing or for writing to a custom destination.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a logger that stamps every record with the subsystem name.
// Calling Module again replaces the name rather than nesting it.
func (l *Logger) Module(name string) *Logger {
	return &Logger{module: name, inner: l.inner}
}

// With returns a child logger with additional key-value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{module: l.module, inner: l.inner.With(args...)}
}

// emit writes one record, prepending the module attribute when set. Level
// filtering is the handler's job.
func (l *Logger) emit(level slog.Level, msg string, args []any) {
	if l.module != "" {
		args = append([]any{"module", l.module}, args...)
	}
	l.inner.Log(context.Background(), level, msg, args...)
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.emit(slog.LevelInfo, msg, args) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.emit(slog.LevelWarn, msg, args) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args) }

// Debug logs at LevelDebug using the default logger.
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Info logs at LevelInfo using the default logger.
func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

// Warn logs at LevelWarn using the default logger.
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

// Error logs at LevelError using the default logger.
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
