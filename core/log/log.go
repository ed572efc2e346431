// Package log defines the structured logging interface shared by every package.
//
// Overview:
//   - Responsibility: A stable logging seam so libraries never depend on a concrete logger
//   - Key Types: Logger with key-value structured logging
//   - Concurrency Model: Implementations must be safe for concurrent use
//
// Usage:
//
//	logger.Warn("subsystem read failed", log.Str("subsystem", "disk"))
package log

import "time"

// Logger defines a structured logging interface compatible with slog concepts.
// Implementations must be safe for concurrent use.
type Logger interface {
	// With returns a Logger with the given key-value pairs attached.
	With(kv ...any) Logger

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, kv ...any)

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, kv ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, kv ...any)

	// Error logs an error message. The error comes first.
	Error(err error, msg string, kv ...any)
}

// Str creates a string key-value pair.
func Str(k, v string) any {
	return []any{k, v}
}

// Int creates an integer key-value pair.
func Int(k string, v int) any {
	return []any{k, v}
}

// Int64 creates an int64 key-value pair.
func Int64(k string, v int64) any {
	return []any{k, v}
}

// Dur creates a duration key-value pair.
func Dur(k string, v time.Duration) any {
	return []any{k, v}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (l nopLogger) With(kv ...any) Logger                { return l }
func (nopLogger) Debug(msg string, kv ...any)            {}
func (nopLogger) Info(msg string, kv ...any)             {}
func (nopLogger) Warn(msg string, kv ...any)             {}
func (nopLogger) Error(err error, msg string, kv ...any) {}
