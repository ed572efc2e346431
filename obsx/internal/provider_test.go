package internal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.eggybyte.com/sysobs/core/errors"
)

func newTestProvider(t *testing.T, opts ProviderOptions) *Provider {
	t.Helper()
	if opts.ServiceName == "" {
		opts.ServiceName = "test-service"
	}
	provider, err := NewProvider(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewProvider() error = %v, want nil", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func TestNewProvider_Success(t *testing.T) {
	provider := newTestProvider(t, ProviderOptions{ServiceVersion: "1.0.0"})
	if provider.MeterProvider == nil {
		t.Error("MeterProvider should not be nil")
	}
	if provider.registry == nil {
		t.Error("prometheus is the default exporter, registry should not be nil")
	}
}

func TestNewProvider_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts ProviderOptions
	}{
		{name: "empty service name", opts: ProviderOptions{ServiceVersion: "1.0.0"}},
		{name: "unknown exporter", opts: ProviderOptions{ServiceName: "svc", Exporter: "zipkin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("NewProvider() should return error")
			}
			if provider != nil {
				t.Error("NewProvider() should return nil provider on error")
			}
			if got := errors.CodeOf(err); got != errors.CodeInvalidArgument {
				t.Errorf("CodeOf() = %q, want %q", got, errors.CodeInvalidArgument)
			}
		})
	}
}

func TestNewProvider_AllExporters(t *testing.T) {
	for _, exp := range []Exporter{ExporterPrometheus, ExporterOTLP, ExporterStdout} {
		t.Run(string(exp), func(t *testing.T) {
			provider, err := NewProvider(context.Background(), ProviderOptions{
				ServiceName:  "sysobs",
				Exporter:     exp,
				OTLPEndpoint: "localhost:4317",
				Insecure:     true,
				Writer:       io.Discard,
			})
			if err != nil {
				t.Fatalf("NewProvider(%s) error = %v, want nil", exp, err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_ = provider.Shutdown(ctx)
		})
	}
}

func TestObserverResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=ci,team=from-env")

	res, err := observerResource(context.Background(), ProviderOptions{
		ServiceName:    "sysobs",
		ServiceVersion: "1.2.3",
		ResourceAttrs:  map[string]string{"team": "infra"},
	})
	if err != nil {
		t.Fatalf("observerResource() error = %v", err)
	}

	want := map[attribute.Key]string{
		"service.name":           "sysobs",
		"service.version":        "1.2.3",
		"deployment.environment": "ci",
		"team":                   "infra",
	}
	set := res.Set()
	for k, v := range want {
		got, ok := set.Value(k)
		if !ok || got.AsString() != v {
			t.Errorf("%s = %q (present %v), want %q", k, got.AsString(), ok, v)
		}
	}
	if host, ok := set.Value("host.name"); !ok || host.AsString() == "" {
		t.Error("host.name missing from resource")
	}
}

func TestNewProvider_WithResourceAttrs(t *testing.T) {
	newTestProvider(t, ProviderOptions{
		ServiceVersion: "1.0.0",
		ResourceAttrs: map[string]string{
			"env":    "test",
			"region": "us-east-1",
		},
	})
}

func TestProvider_MetricsHandler(t *testing.T) {
	provider := newTestProvider(t, ProviderOptions{})

	meter := provider.MeterProvider.Meter("test")
	_, err := meter.Int64ObservableGauge("test.queue.depth",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(7)
			return nil
		}))
	if err != nil {
		t.Fatalf("Int64ObservableGauge() error = %v", err)
	}

	rec := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "test_queue_depth") {
		t.Errorf("body does not contain test_queue_depth:\n%s", body)
	}
}

func TestProvider_MetricsHandler_PushExporter(t *testing.T) {
	provider := newTestProvider(t, ProviderOptions{Exporter: ExporterStdout, Writer: io.Discard})

	rec := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestProvider_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	provider, err := NewProvider(context.Background(), ProviderOptions{
		ServiceName:    "test-service",
		Exporter:       ExporterStdout,
		Writer:         &buf,
		ExportInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v, want nil", err)
	}

	_, err = provider.MeterProvider.Meter("test").Float64ObservableGauge("test.temperature",
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(21.5)
			return nil
		}))
	if err != nil {
		t.Fatalf("Float64ObservableGauge() error = %v", err)
	}

	// Shutdown exports once more before closing.
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v, want nil", err)
	}
	if !strings.Contains(buf.String(), "test.temperature") {
		t.Errorf("stdout export does not contain test.temperature:\n%s", buf.String())
	}
}

func TestProvider_Shutdown_NilProvider(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}

func TestEnableRuntimeMetrics(t *testing.T) {
	provider := newTestProvider(t, ProviderOptions{})

	if err := provider.EnableRuntimeMetrics(); err != nil {
		t.Errorf("EnableRuntimeMetrics() error = %v, want nil", err)
	}
	// Second call is a no-op.
	if err := provider.EnableRuntimeMetrics(); err != nil {
		t.Errorf("EnableRuntimeMetrics() second call error = %v, want nil", err)
	}

	rec := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutine") {
		t.Errorf("runtime metrics missing from scrape:\n%s", rec.Body.String())
	}
}
