package log

import (
	"errors"
	"testing"
	"time"
)

func TestPairs(t *testing.T) {
	tests := []struct {
		name string
		kv   any
		key  string
		val  any
	}{
		{"Str", Str("subsystem", "disk"), "subsystem", "disk"},
		{"Int", Int("ticks", 3), "ticks", 3},
		{"Int64", Int64("pid", 4242), "pid", int64(4242)},
		{"Dur", Dur("interval", 5*time.Second), "interval", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, ok := tt.kv.([]any)
			if !ok || len(pair) != 2 {
				t.Fatalf("%s should return a 2-element []any, got %#v", tt.name, tt.kv)
			}
			if pair[0] != tt.key || pair[1] != tt.val {
				t.Errorf("%s = %v, want [%v %v]", tt.name, pair, tt.key, tt.val)
			}
		})
	}
}

func TestNop(t *testing.T) {
	l := Nop().With("k", "v")
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error(errors.New("boom"), "error")
}
