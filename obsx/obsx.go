// Package obsx provides OpenTelemetry metrics for processes and hosts.
//
// Overview:
//   - Responsibility: Bootstrap a meter provider and sample process/system metrics into it
//   - Key Types: Options and Provider for the pipeline, ObserverOptions and Observer for sampling
//   - Concurrency Model: Provider and Observer are safe for concurrent use; one tick runs at a time
//   - Error Semantics: NewObserver returns ErrProcessNotFound for unknown pids; per-tick
//     subsystem failures are logged and never stop sampling
//   - Performance Notes: Only enabled subsystems are read on each tick
//
// Usage:
//
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//	  ServiceName: "my-service",
//	  ServiceVersion: "1.0.0",
//	})
//	observer, err := provider.EnableSystemMetrics(ctx, obsx.ObserverOptions{
//	  Interval: 5 * time.Second,
//	})
//	if err := observer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Shutdown(ctx)
package obsx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tilinna/clock"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"go.eggybyte.com/sysobs/core/log"
	"go.eggybyte.com/sysobs/hostx"
	"go.eggybyte.com/sysobs/obsx/internal"
)

// Exporter selects the metrics backend.
type Exporter = internal.Exporter

// Supported exporters.
const (
	ExporterPrometheus = internal.ExporterPrometheus // pull, served by PrometheusHandler
	ExporterOTLP       = internal.ExporterOTLP       // push over gRPC
	ExporterStdout     = internal.ExporterStdout     // push as pretty-printed JSON
)

// Options holds configuration for the metrics provider.
type Options struct {
	ServiceName    string            // Service name for metrics
	ServiceVersion string            // Service version
	ResourceAttrs  map[string]string // Additional resource attributes
	Exporter       Exporter          // Backend, defaults to ExporterPrometheus
	OTLPEndpoint   string            // Collector address (host:port or URL) for ExporterOTLP
	Insecure       bool              // Disable TLS for ExporterOTLP
	ExportInterval time.Duration     // Push interval for OTLP and stdout, defaults to 60s
	Writer         io.Writer         // Destination for ExporterStdout, defaults to os.Stdout
	RegisterGlobal bool              // Also install as the otel global meter provider
}

// Provider manages an OpenTelemetry meter provider and its exporter.
// The provider must be shut down when no longer needed.
type Provider struct {
	impl *internal.Provider
}

// MeterProvider returns the OpenTelemetry meter provider.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.impl.MeterProvider
}

// PrometheusHandler returns an HTTP handler for the Prometheus metrics endpoint.
// This handler exposes metrics in Prometheus text format suitable for scraping.
//
// Returns:
//   - http.Handler: handler that serves Prometheus metrics at any path;
//     it answers 503 when a push exporter is configured
//
// Concurrency:
//   - Safe for concurrent use
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", provider.PrometheusHandler())
func (p *Provider) PrometheusHandler() http.Handler {
	return p.impl.MetricsHandler()
}

// Meter returns an OpenTelemetry Meter for creating custom metrics.
//
// Parameters:
//   - name: instrumentation scope, e.g. "sysobs/exporter-selftest"
//
// Returns:
//   - api/metric.Meter: meter instance for creating counters, histograms, and gauges
//
// Concurrency:
//   - Safe for concurrent use
func (p *Provider) Meter(name string) api.Meter {
	return p.impl.MeterProvider.Meter(name)
}

// NewProvider creates a new metrics provider.
// The provider must be shut down when no longer needed.
//
// Parameters:
//   - ctx: context for provider initialization
//   - opts: provider configuration options
//
// Returns:
//   - *Provider: initialized provider instance
//   - error: INVALID_ARGUMENT for bad options, UNAVAILABLE when the exporter cannot be built
//
// Concurrency:
//   - Safe to call from multiple goroutines
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	impl, err := internal.NewProvider(ctx, internal.ProviderOptions{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		ResourceAttrs:  opts.ResourceAttrs,
		Exporter:       opts.Exporter,
		OTLPEndpoint:   opts.OTLPEndpoint,
		Insecure:       opts.Insecure,
		ExportInterval: opts.ExportInterval,
		Writer:         opts.Writer,
		RegisterGlobal: opts.RegisterGlobal,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{impl: impl}, nil
}

// ForceFlush exports pending measurements of push exporters.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.impl.ForceFlush(ctx)
}

// Shutdown flushes and shuts down the provider.
// This should be called when the application is shutting down.
//
// Parameters:
//   - ctx: context with shutdown timeout
//
// Returns:
//   - error: shutdown error if any
//
// Concurrency:
//   - Blocks until shutdown completes or timeout
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.impl.Shutdown(ctx)
}

// EnableRuntimeMetrics starts collecting Go runtime metrics (goroutines, GC,
// heap, scheduler) through the contrib runtime instrumentation.
//
// Concurrency:
//   - Safe to call multiple times (idempotent)
func (p *Provider) EnableRuntimeMetrics(ctx context.Context) error {
	return p.impl.EnableRuntimeMetrics()
}

// EnableSystemMetrics creates an Observer on the provider's own meter.
// The observer does not tick until Start or Run is called.
//
// Example:
//
//	observer, err := provider.EnableSystemMetrics(ctx, obsx.ObserverOptions{EnableGPU: true})
//	if err != nil {
//	    return err
//	}
//	go observer.Run(ctx)
func (p *Provider) EnableSystemMetrics(ctx context.Context, opts ObserverOptions) (*Observer, error) {
	return NewObserver(ctx, p.Meter(MeterName), opts)
}

// MeterName is the instrumentation scope used by EnableSystemMetrics.
const MeterName = "go.eggybyte.com/sysobs/obsx"

// Category groups metrics read from the same subsystem.
type Category = internal.Category

// Metric categories.
const (
	CategoryProcess = internal.CategoryProcess
	CategoryCPU     = internal.CategoryCPU
	CategoryMemory  = internal.CategoryMemory
	CategoryDisk    = internal.CategoryDisk
	CategoryNetwork = internal.CategoryNetwork
	CategoryGPU     = internal.CategoryGPU
)

// DefaultInterval is the sampling interval used when ObserverOptions.Interval is zero.
const DefaultInterval = internal.DefaultInterval

// ErrProcessNotFound is returned by NewObserver when the pid does not exist.
var ErrProcessNotFound = hostx.ErrProcessNotFound

// ObserverOptions configures an Observer. Zero values select defaults.
type ObserverOptions struct {
	PID          int32             // Process to observe, defaults to the current process
	Interval     time.Duration     // Sampling interval, defaults to DefaultInterval
	Categories   []Category        // Enabled categories, defaults to all but CategoryGPU
	EnableGPU    bool              // Adds CategoryGPU
	GPU          hostx.GPUSource   // GPU capability; without one, GPU metrics report nothing
	CustomLabels map[string]string // Static labels attached to every point
	Source       hostx.Source      // OS metrics provider, defaults to hostx.NewSource()
	Logger       log.Logger        // Defaults to a discarding logger
	Clock        clock.Clock       // Defaults to real time
	Iterations   int               // Ticks before Run returns, 0 means unbounded
}

// Observer samples one process and the host on an interval and publishes
// the values through asynchronous gauges.
//
// Metrics:
//   - process.cpu.usage, process.cpu.utilization (percent)
//   - process.memory.usage, process.memory.virtual (By)
//   - process.disk.io{direction} (By per interval)
//   - system.cpu.usage{cpu} (percent)
//   - system.memory.usage, system.memory.total (By)
//   - system.disk.usage{device,mountpoint}, system.disk.io{device,direction}
//   - system.network.io{interface,direction}, system.network.io.rate (By/s)
//   - system.gpu.memory.usage{gpu.index}, process.gpu.memory.usage{gpu.index}
type Observer struct {
	impl *internal.Observer
}

// NewObserver resolves the process and registers the instruments with meter.
// The meter is never replaced by the global provider.
//
// Several observers may share one meter, but they share its instruments too:
// system.* series carry no observer identity, so give each observer distinct
// CustomLabels when both report host metrics.
//
// Parameters:
//   - ctx: context for the initial process lookup
//   - meter: meter that receives the instruments
//   - opts: observer options
//
// Returns:
//   - *Observer: registered observer, not yet ticking
//   - error: ErrProcessNotFound (code NOT_FOUND) when the pid does not exist;
//     nothing is registered in that case
func NewObserver(ctx context.Context, meter api.Meter, opts ObserverOptions) (*Observer, error) {
	cats := opts.Categories
	if opts.EnableGPU {
		if len(cats) == 0 {
			cats = internal.DefaultCategories
		}
		cats = append(append([]Category(nil), cats...), CategoryGPU)
	}

	impl, err := internal.NewObserver(ctx, meter, internal.ObserverOptions{
		PID:          opts.PID,
		Interval:     opts.Interval,
		Categories:   cats,
		GPU:          opts.GPU,
		CustomLabels: opts.CustomLabels,
		Source:       opts.Source,
		Logger:       opts.Logger,
		Clock:        opts.Clock,
		Iterations:   opts.Iterations,
	})
	if err != nil {
		return nil, err
	}
	return &Observer{impl: impl}, nil
}

// ObserveProcess creates an Observer and runs it until ctx is done or
// opts.Iterations ticks have completed. The instruments stay registered
// afterwards so a final export still sees the last sample.
func ObserveProcess(ctx context.Context, meter api.Meter, opts ObserverOptions) error {
	o, err := NewObserver(ctx, meter, opts)
	if err != nil {
		return err
	}
	return o.Run(ctx)
}

// ObserveOnce creates an Observer and samples once without waiting for an
// interval. Subsystem failures of that sample are logged, not returned.
func ObserveOnce(ctx context.Context, meter api.Meter, opts ObserverOptions) (*Observer, error) {
	o, err := NewObserver(ctx, meter, opts)
	if err != nil {
		return nil, err
	}
	_ = o.Tick(ctx)
	return o, nil
}

// Tick samples once. The returned error combines the subsystem failures of
// this tick; the observer stays usable either way.
func (o *Observer) Tick(ctx context.Context) error {
	return o.impl.Tick(ctx)
}

// Run ticks every interval until ctx is done or the configured iterations
// have completed. The first tick happens one interval after Run is called.
func (o *Observer) Run(ctx context.Context) error {
	return o.impl.Run(ctx)
}

// Start runs the sampling loop on its own goroutine.
func (o *Observer) Start(ctx context.Context) error {
	return o.impl.Start(ctx)
}

// Stop stops the loop started by Start, waiting at most until ctx expires.
func (o *Observer) Stop(ctx context.Context) error {
	return o.impl.Stop(ctx)
}

// Shutdown stops the loop and unregisters the callback.
func (o *Observer) Shutdown(ctx context.Context) error {
	return o.impl.Shutdown(ctx)
}

// Name identifies the observer in health reports.
func (o *Observer) Name() string {
	return o.impl.Name()
}

// Check reports unhealthy when sampling has stalled for three intervals.
func (o *Observer) Check(ctx context.Context) error {
	return o.impl.Check(ctx)
}

// Process returns the identity of the observed process.
func (o *Observer) Process() hostx.ProcessInfo {
	return o.impl.Process()
}

// Instruments returns the names of the registered metrics.
func (o *Observer) Instruments() []string {
	return o.impl.Instruments()
}

// ProcessGone reports whether the observed process has exited.
func (o *Observer) ProcessGone() bool {
	return o.impl.ProcessGone()
}
