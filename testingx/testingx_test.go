package testingx

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.eggybyte.com/sysobs/core/errors"
)

func TestMockLogger_Levels(t *testing.T) {
	logger := NewMockLogger(t)
	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	testErr := errors.New(errors.CodeInternal, "boom")
	logger.Error(testErr, "error message")

	entries := logger.Entries()
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}

	want := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, entry := range entries {
		if entry.Level != want[i] {
			t.Errorf("entries[%d].Level = %s, want %s", i, entry.Level, want[i])
		}
	}
	if len(entries[0].Fields) != 2 {
		t.Errorf("Expected 2 fields, got %d", len(entries[0].Fields))
	}
	if entries[3].Error != testErr {
		t.Errorf("Error entry error = %v, want %v", entries[3].Error, testErr)
	}
}

func TestMockLogger_With(t *testing.T) {
	logger := NewMockLogger(t)
	child := logger.With("pid", 42)
	child.Info("child message", "key", "value")

	entries := logger.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if len(entries[0].Fields) != 4 {
		t.Errorf("Fields = %v, want pid and key pairs", entries[0].Fields)
	}
}

func TestMockLogger_CountAndClear(t *testing.T) {
	logger := NewMockLogger(t)
	logger.Warn("disk read failed")
	logger.Warn("network read failed")
	logger.Info("read failed")

	if got := logger.Count("WARN", "read failed"); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	logger.AssertLogged("INFO", "read failed")

	logger.Clear()
	if len(logger.Entries()) != 0 {
		t.Error("Clear() should remove all entries")
	}
}

func TestMockLogger_Concurrent(t *testing.T) {
	logger := NewMockLogger(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("concurrent")
		}()
	}
	wg.Wait()

	if got := len(logger.Entries()); got != 10 {
		t.Errorf("Expected 10 entries, got %d", got)
	}
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New(errors.CodeNotFound, "missing"), errors.CodeNotFound)
	AssertNoError(t, nil)
}

func TestMetricHelpers(t *testing.T) {
	meter, reader := NewMeter(t)

	_, err := meter.Int64ObservableGauge("queue.depth",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(3, metric.WithAttributes(attribute.String("queue", "a")))
			o.Observe(5, metric.WithAttributes(attribute.String("queue", "b")))
			return nil
		}))
	if err != nil {
		t.Fatalf("Int64ObservableGauge() error = %v", err)
	}
	_, err = meter.Float64ObservableGauge("load",
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(0.5)
			return nil
		}))
	if err != nil {
		t.Fatalf("Float64ObservableGauge() error = %v", err)
	}

	rm := Collect(t, reader)

	points := IntGauge(t, rm, "queue.depth")
	if len(points) != 2 {
		t.Fatalf("IntGauge() len = %d, want 2", len(points))
	}
	p, ok := PointWith(points, attribute.String("queue", "b"))
	if !ok || p.Value != 5 {
		t.Errorf("PointWith(queue=b) = %v, %v, want 5, true", p.Value, ok)
	}
	if _, ok := PointWith(points, attribute.String("queue", "c")); ok {
		t.Error("PointWith(queue=c) should not match")
	}

	if got := FloatGauge(t, rm, "load"); len(got) != 1 || got[0].Value != 0.5 {
		t.Errorf("FloatGauge() = %v, want one point 0.5", got)
	}
	if got := IntGauge(t, rm, "absent"); got != nil {
		t.Errorf("IntGauge(absent) = %v, want nil", got)
	}
}
