// Package obsx provides tests for observability provider.
package obsx

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tilinna/clock"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/hostx"
	"go.eggybyte.com/sysobs/hostx/hostxtest"
	"go.eggybyte.com/sysobs/testingx"
)

func fakeHost() *hostxtest.Source {
	src := hostxtest.NewSource()
	src.AddProcess(hostx.ProcessInfo{PID: 42, Name: "worker"}, hostx.ProcessStat{CPUPercent: 50, RSS: 4096})
	src.SetMemory(hostx.MemoryStat{Total: 8 << 30, Used: 2 << 30})
	src.SetInterfaces(hostx.InterfaceStat{Name: "eth0", BytesRecv: 1000, BytesSent: 500})
	return src
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "valid options",
			opts: Options{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "missing service name",
			opts: Options{
				ServiceVersion: "1.0.0",
			},
			wantErr: true,
		},
		{
			name: "with resource attributes",
			opts: Options{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
				ResourceAttrs: map[string]string{
					"environment": "test",
					"region":      "us-west-2",
				},
			},
			wantErr: false,
		},
		{
			name: "otlp exporter",
			opts: Options{
				ServiceName:  "test-service",
				Exporter:     ExporterOTLP,
				OTLPEndpoint: "http://localhost:4317",
				Insecure:     true,
			},
			wantErr: false,
		},
		{
			name: "unknown exporter",
			opts: Options{
				ServiceName: "test-service",
				Exporter:    "carbon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if provider == nil {
					t.Error("NewProvider() returned nil provider")
					return
				}

				if provider.MeterProvider() == nil {
					t.Error("MeterProvider is nil")
				}

				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				_ = provider.Shutdown(ctx)
			}
		})
	}
}

func TestNewObserver_ProcessNotFound(t *testing.T) {
	meter, _ := testingx.NewMeter(t)
	_, err := NewObserver(context.Background(), meter, ObserverOptions{PID: 9999, Source: fakeHost()})
	if !stderrors.Is(err, ErrProcessNotFound) {
		t.Fatalf("NewObserver() error = %v, want ErrProcessNotFound", err)
	}
	testingx.AssertError(t, err, errors.CodeNotFound)
}

func TestNewObserver_EnableGPU(t *testing.T) {
	meter, reader := testingx.NewMeter(t)
	gpu := hostxtest.NewGPU(hostx.GPUDevice{Index: 0, MemoryUsed: 1024})

	o, err := NewObserver(context.Background(), meter, ObserverOptions{
		PID:       42,
		Source:    fakeHost(),
		EnableGPU: true,
		GPU:       gpu,
	})
	testingx.AssertNoError(t, err)
	defer o.Shutdown(context.Background())

	if got := len(o.Instruments()); got != 14 {
		t.Errorf("Instruments() len = %d, want 14", got)
	}
	testingx.AssertNoError(t, o.Tick(context.Background()))

	rm := testingx.Collect(t, reader)
	if got := testingx.IntGauge(t, rm, "system.gpu.memory.usage"); len(got) != 1 || got[0].Value != 1024 {
		t.Errorf("system.gpu.memory.usage = %v, want one point of 1024", got)
	}
}

func TestObserveOnce(t *testing.T) {
	meter, reader := testingx.NewMeter(t)

	o, err := ObserveOnce(context.Background(), meter, ObserverOptions{PID: 42, Source: fakeHost()})
	testingx.AssertNoError(t, err)
	defer o.Shutdown(context.Background())

	rm := testingx.Collect(t, reader)
	if got := testingx.IntGauge(t, rm, "system.memory.usage"); len(got) != 1 || got[0].Value != 2<<30 {
		t.Errorf("system.memory.usage = %v, want one point of 2GiB", got)
	}
	if got := testingx.IntGauge(t, rm, "process.memory.usage"); len(got) != 1 || got[0].Value != 4096 {
		t.Errorf("process.memory.usage = %v, want one point of 4096", got)
	}
	if o.Process().Name != "worker" {
		t.Errorf("Process().Name = %q, want worker", o.Process().Name)
	}
}

func TestObserveProcess_Iterations(t *testing.T) {
	meter, reader := testingx.NewMeter(t)
	mock := clock.NewMock(time.Now())

	done := make(chan error, 1)
	go func() {
		done <- ObserveProcess(context.Background(), meter, ObserverOptions{
			PID:        42,
			Source:     fakeHost(),
			Clock:      mock,
			Interval:   time.Second,
			Iterations: 3,
		})
	}()

	deadline := time.After(5 * time.Second)
	for {
		mock.Add(time.Second)
		select {
		case err := <-done:
			testingx.AssertNoError(t, err)
			rm := testingx.Collect(t, reader)
			if got := testingx.IntGauge(t, rm, "system.network.io"); len(got) != 2 {
				t.Errorf("system.network.io points = %d, want 2", len(got))
			}
			return
		case <-deadline:
			t.Fatal("ObserveProcess() did not return after 3 iterations")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestProvider_EnableSystemMetrics(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Options{ServiceName: "test-service"})
	testingx.AssertNoError(t, err)
	defer provider.Shutdown(ctx)

	o, err := provider.EnableSystemMetrics(ctx, ObserverOptions{
		PID:          42,
		Source:       fakeHost(),
		Categories:   []Category{CategoryMemory},
		CustomLabels: map[string]string{"host": "node-1"},
	})
	testingx.AssertNoError(t, err)
	defer o.Shutdown(ctx)
	testingx.AssertNoError(t, o.Tick(ctx))

	rec := httptest.NewRecorder()
	provider.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"system_memory_usage", "system_memory_total", `host="node-1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape does not contain %s:\n%s", want, body)
		}
	}
}

func TestProvider_EnableRuntimeMetrics(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Options{ServiceName: "test-service"})
	testingx.AssertNoError(t, err)
	defer provider.Shutdown(ctx)

	if err := provider.EnableRuntimeMetrics(ctx); err != nil {
		t.Errorf("EnableRuntimeMetrics() error = %v, want nil", err)
	}
}
