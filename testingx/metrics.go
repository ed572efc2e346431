package testingx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// NewMeter returns a meter whose measurements are read on demand through reader.
// The provider is shut down when the test ends.
func NewMeter(t testing.TB) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp.Meter("testingx"), reader
}

// Collect runs every registered callback and returns the result.
func Collect(t testing.TB, reader sdkmetric.Reader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

// FindMetric returns the first metric named name.
func FindMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// IntGauge returns the points of the int64 gauge name. Absent metrics yield nil.
func IntGauge(t testing.TB, rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	m, ok := FindMetric(rm, name)
	if !ok {
		return nil
	}
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want int64 gauge", name, m.Data)
	}
	return g.DataPoints
}

// FloatGauge returns the points of the float64 gauge name. Absent metrics yield nil.
func FloatGauge(t testing.TB, rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[float64] {
	t.Helper()
	m, ok := FindMetric(rm, name)
	if !ok {
		return nil
	}
	g, ok := m.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("metric %s is %T, want float64 gauge", name, m.Data)
	}
	return g.DataPoints
}

// PointWith returns the first point carrying every given attribute.
func PointWith[N int64 | float64](points []metricdata.DataPoint[N], kvs ...attribute.KeyValue) (metricdata.DataPoint[N], bool) {
	for _, p := range points {
		match := true
		for _, kv := range kvs {
			if v, ok := p.Attributes.Value(kv.Key); !ok || v.Type() != kv.Value.Type() || v.Emit() != kv.Value.Emit() {
				match = false
				break
			}
		}
		if match {
			return p, true
		}
	}
	return metricdata.DataPoint[N]{}, false
}
