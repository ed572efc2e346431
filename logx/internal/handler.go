// Package internal provides internal implementation details for logx.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options configures the logfmt handler.
type Options struct {
	Level            slog.Leveler // nil means info; a *slog.LevelVar can change at runtime
	Color            bool
	DisableTimestamp bool
}

// Handler is an slog.Handler that writes logfmt with fields sorted by key.
type Handler struct {
	opts   Options
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	group  string
}

// NewHandler creates a Handler writing to w.
func NewHandler(opts Options, w io.Writer) *Handler {
	return &Handler{opts: opts, mu: &sync.Mutex{}, writer: w}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		attrs = append(attrs, a)
		return true
	})

	var buf strings.Builder
	if !h.opts.DisableTimestamp {
		ts := r.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		buf.WriteString("time=")
		buf.WriteString(ts.Format(time.RFC3339))
		buf.WriteString(" ")
	}

	level := LevelString(r.Level)
	if h.opts.Color {
		level = ColorizeLevel(level)
	}
	buf.WriteString("level=")
	buf.WriteString(level)
	buf.WriteString(" msg=")
	buf.WriteString(strconv.Quote(r.Message))

	for _, a := range SortAttrs(attrs) {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(FormatValue(a.Value))
	}
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, buf.String())
	return err
}

// WithAttrs returns a Handler with the given attributes appended.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a Handler that prefixes subsequent keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

// Emit sends a record with pre-built attributes through any slog.Handler.
func Emit(h slog.Handler, level slog.Level, msg string, attrs []slog.Attr) {
	ctx := context.Background()
	if !h.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}

// KVToAttrs converts alternating key-value pairs to attributes.
// Pairs built with core/log helpers ([]any{k, v}) are flattened first.
func KVToAttrs(kv []any) []slog.Attr {
	flat := make([]any, 0, len(kv))
	for _, item := range kv {
		if pair, ok := item.([]any); ok && len(pair) == 2 {
			flat = append(flat, pair[0], pair[1])
			continue
		}
		flat = append(flat, item)
	}

	attrs := make([]slog.Attr, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs = append(attrs, slog.Any(fmt.Sprint(flat[i]), flat[i+1]))
	}
	return attrs
}

// SortAttrs returns a copy of attrs sorted by key.
func SortAttrs(attrs []slog.Attr) []slog.Attr {
	sorted := append([]slog.Attr{}, attrs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})
	return sorted
}

// FormatValue renders a value for logfmt output. Strings are always quoted.
func FormatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return strconv.Quote(v.String())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return strconv.Quote(v.Duration().String())
	case slog.KindTime:
		return strconv.Quote(v.Time().Format(time.RFC3339))
	default:
		return strconv.Quote(fmt.Sprint(v.Any()))
	}
}

// LevelString returns the upper-case name of a level.
func LevelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}

// ColorizeLevel wraps the level name in ANSI colour codes.
func ColorizeLevel(level string) string {
	const (
		reset   = "\033[0m"
		red     = "\033[31m"
		yellow  = "\033[33m"
		cyan    = "\033[36m"
		magenta = "\033[35m"
	)

	switch level {
	case "DEBUG":
		return magenta + level + reset
	case "INFO":
		return cyan + level + reset
	case "WARN":
		return yellow + level + reset
	case "ERROR":
		return red + level + reset
	default:
		return level
	}
}
