// Package logx provides the slog-based implementation of core/log.Logger.
//
// Overview:
//   - Responsibility: logfmt or JSON output with sorted fields and optional level colour
//   - Key Types: Logger, Option, Format
//   - Concurrency Model: All loggers are safe for concurrent use
//   - Error Semantics: No errors returned; write failures are dropped
//
// Usage:
//
//	logger := logx.New(logx.WithFormat(logx.FormatLogfmt), logx.WithLevel(slog.LevelDebug))
//	logger.Info("observer started", log.Dur("interval", 5*time.Second))
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.eggybyte.com/sysobs/core/log"
	"go.eggybyte.com/sysobs/logx/internal"
)

// Format specifies the output format for logs.
type Format string

const (
	// FormatLogfmt outputs key=value pairs.
	FormatLogfmt Format = "logfmt"
	// FormatJSON outputs one JSON object per line.
	FormatJSON Format = "json"
)

// Options configures the logger behavior.
type Options struct {
	Format           Format         // Output format: logfmt or json
	Level            slog.Level     // Minimum log level
	LevelVar         *slog.LevelVar // Overrides Level and may be changed while logging
	Color            bool           // Colorize the level field (logfmt only)
	Writer           io.Writer      // Output writer (default: os.Stderr)
	DisableTimestamp bool           // Omit the time field
}

// Option configures logger behavior.
type Option func(*Options)

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(o *Options) { o.Format = format }
}

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.Level = level }
}

// WithLevelVar makes the minimum level follow v, so it can be raised or
// lowered without rebuilding the logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(o *Options) { o.LevelVar = v }
}

// WithColor enables colorization of the level field.
func WithColor(enabled bool) Option {
	return func(o *Options) { o.Color = enabled }
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(o *Options) { o.Writer = w }
}

// WithTimestamp toggles the time field.
func WithTimestamp(enabled bool) Option {
	return func(o *Options) { o.DisableTimestamp = !enabled }
}

// Logger implements core/log.Logger on top of an slog.Handler.
type Logger struct {
	handler slog.Handler
	attrs   []slog.Attr
}

// New creates a Logger with the given options.
func New(opts ...Option) log.Logger {
	options := Options{
		Format: FormatLogfmt,
		Level:  slog.LevelInfo,
		Writer: os.Stderr,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Writer == nil {
		options.Writer = os.Stderr
	}

	var level slog.Leveler = options.Level
	if options.LevelVar != nil {
		level = options.LevelVar
	}

	var handler slog.Handler
	switch options.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(options.Writer, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if options.DisableTimestamp && len(groups) == 0 && a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return a
			},
		})
	default:
		handler = internal.NewHandler(internal.Options{
			Level:            level,
			Color:            options.Color,
			DisableTimestamp: options.DisableTimestamp,
		}, options.Writer)
	}

	return &Logger{handler: handler}
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a Logger with the given key-value pairs attached.
func (l *Logger) With(kv ...any) log.Logger {
	attrs := append([]slog.Attr{}, l.attrs...)
	attrs = append(attrs, internal.KVToAttrs(kv)...)
	return &Logger{handler: l.handler, attrs: attrs}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, kv ...any) {
	l.log(slog.LevelDebug, msg, internal.KVToAttrs(kv))
}

// Info logs an informational message.
func (l *Logger) Info(msg string, kv ...any) {
	l.log(slog.LevelInfo, msg, internal.KVToAttrs(kv))
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, kv ...any) {
	l.log(slog.LevelWarn, msg, internal.KVToAttrs(kv))
}

// Error logs an error message with the error as the "error" field.
func (l *Logger) Error(err error, msg string, kv ...any) {
	attrs := internal.KVToAttrs(kv)
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("error", err)}, attrs...)
	}
	l.log(slog.LevelError, msg, attrs)
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr) {
	all := append([]slog.Attr{}, l.attrs...)
	all = append(all, attrs...)
	internal.Emit(l.handler, level, msg, all)
}
