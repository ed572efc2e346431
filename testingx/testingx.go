package testingx

import (
	"strings"
	"sync"
	"testing"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
)

// LogEntry is one call recorded by MockLogger.
type LogEntry struct {
	Level   string
	Message string
	Fields  []any
	Error   error
}

// recorder is shared by a MockLogger and every logger derived from it.
type recorder struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (r *recorder) add(e LogEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// MockLogger records entries in memory instead of writing them. It is safe
// for concurrent use, which matters for observers logging from their loop.
type MockLogger struct {
	t    testing.TB
	base []any
	rec  *recorder
}

var _ log.Logger = (*MockLogger)(nil)

func NewMockLogger(t testing.TB) *MockLogger {
	return &MockLogger{t: t, rec: &recorder{}}
}

// With prepends kv to the fields of every entry the derived logger records.
func (m *MockLogger) With(kv ...any) log.Logger {
	return &MockLogger{t: m.t, base: concat(m.base, kv), rec: m.rec}
}

func (m *MockLogger) Debug(msg string, kv ...any)            { m.record("DEBUG", msg, nil, kv) }
func (m *MockLogger) Info(msg string, kv ...any)             { m.record("INFO", msg, nil, kv) }
func (m *MockLogger) Warn(msg string, kv ...any)             { m.record("WARN", msg, nil, kv) }
func (m *MockLogger) Error(err error, msg string, kv ...any) { m.record("ERROR", msg, err, kv) }

func (m *MockLogger) record(level, msg string, err error, kv []any) {
	m.rec.add(LogEntry{Level: level, Message: msg, Fields: concat(m.base, kv), Error: err})
}

func concat(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// Entries returns a copy of everything recorded so far.
func (m *MockLogger) Entries() []LogEntry {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return append([]LogEntry(nil), m.rec.entries...)
}

// Count returns how many entries at level contain substr in their message.
func (m *MockLogger) Count(level, substr string) int {
	n := 0
	for _, e := range m.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// AssertLogged fails the test unless an entry with exactly this level and
// message was recorded.
func (m *MockLogger) AssertLogged(level, msg string) {
	m.t.Helper()
	for _, e := range m.Entries() {
		if e.Level == level && e.Message == msg {
			return
		}
	}
	m.t.Errorf("no %s entry %q among %d recorded", level, msg, len(m.Entries()))
}

func (m *MockLogger) Clear() {
	m.rec.mu.Lock()
	m.rec.entries = nil
	m.rec.mu.Unlock()
}

// AssertError fails the test unless err carries code.
func AssertError(t testing.TB, err error, code errors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("want %s error, got nil", code)
	}
	if got := errors.CodeOf(err); got != code {
		t.Errorf("error code = %s, want %s (%v)", got, code, err)
	}
}

func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
