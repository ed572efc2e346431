// Package internal holds the meter provider and the system metrics observer
// behind obsx.
package internal

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/multierr"

	"go.eggybyte.com/sysobs/core/errors"
)

// Exporter selects the metrics backend.
type Exporter string

// Supported exporters.
const (
	ExporterPrometheus Exporter = "prometheus"
	ExporterOTLP       Exporter = "otlp"
	ExporterStdout     Exporter = "stdout"
)

// DefaultExportInterval is the push interval of the OTLP and stdout exporters.
const DefaultExportInterval = 60 * time.Second

const shutdownGrace = 5 * time.Second

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	ServiceName    string
	ServiceVersion string
	ResourceAttrs  map[string]string // merged into the resource next to host attributes
	Exporter       Exporter          // defaults to ExporterPrometheus
	OTLPEndpoint   string            // host:port or URL, ExporterOTLP only
	Insecure       bool              // plaintext gRPC, ExporterOTLP only
	ExportInterval time.Duration     // push exporters only
	Writer         io.Writer         // ExporterStdout only, defaults to os.Stdout
	RegisterGlobal bool              // also install as the otel global provider
}

// Provider owns the meter provider every sysobs instrument is created on,
// together with its single reader.
type Provider struct {
	MeterProvider *metric.MeterProvider
	registry      *promclient.Registry // nil for push exporters

	runtimeOnce sync.Once
	runtimeErr  error
}

// NewProvider builds the resource and the reader for opts.Exporter. Bad
// options are INVALID_ARGUMENT; an exporter that cannot be built is
// UNAVAILABLE.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.ServiceName == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "service name is required")
	}
	if opts.Exporter == "" {
		opts.Exporter = ExporterPrometheus
	}
	if opts.ExportInterval <= 0 {
		opts.ExportInterval = DefaultExportInterval
	}

	res, err := observerResource(ctx, opts)
	if err != nil {
		return nil, err
	}
	reader, registry, err := createReader(ctx, opts)
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))
	if opts.RegisterGlobal {
		otel.SetMeterProvider(mp)
	}
	return &Provider{MeterProvider: mp, registry: registry}, nil
}

// observerResource describes the observing service and the host it runs on.
// OTEL_RESOURCE_ATTRIBUTES is honored; explicit ResourceAttrs win over it.
// No schema URL is pinned: the host detector stamps the SDK's own semconv
// schema and a second, different one makes resource.New fail.
// A detector that fails only drops its own attributes.
func observerResource(ctx context.Context, opts ProviderOptions) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	}
	for k, v := range opts.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.resource", err)
	}
	return res, nil
}

// createReader builds the reader for the selected exporter. The Prometheus
// registry is only returned for ExporterPrometheus.
func createReader(ctx context.Context, opts ProviderOptions) (metric.Reader, *promclient.Registry, error) {
	switch opts.Exporter {
	case ExporterPrometheus:
		// Metric names already carry their unit, and the gauges have no
		// _total to strip.
		registry := promclient.NewRegistry()
		exp, err := prometheus.New(
			prometheus.WithRegisterer(registry),
			prometheus.WithoutUnits(),
			prometheus.WithoutScopeInfo(),
			prometheus.WithoutCounterSuffixes(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeUnavailable, "obsx.prometheus", err)
		}
		return exp, registry, nil

	case ExporterOTLP:
		var grpcOpts []otlpmetricgrpc.Option
		switch {
		case strings.Contains(opts.OTLPEndpoint, "://"):
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithEndpointURL(opts.OTLPEndpoint))
		case opts.OTLPEndpoint != "":
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithEndpoint(opts.OTLPEndpoint))
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeUnavailable, "obsx.otlp", err)
		}
		return metric.NewPeriodicReader(exp, metric.WithInterval(opts.ExportInterval)), nil, nil

	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeUnavailable, "obsx.stdout", err)
		}
		return metric.NewPeriodicReader(exp, metric.WithInterval(opts.ExportInterval)), nil, nil

	default:
		return nil, nil, errors.New(errors.CodeInvalidArgument, "unknown exporter "+string(opts.Exporter))
	}
}

// MetricsHandler serves the Prometheus registry. With a push exporter there
// is nothing to scrape and the handler answers 503.
func (p *Provider) MetricsHandler() http.Handler {
	if p.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics are pushed, not scraped", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ForceFlush pushes pending data of push exporters.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if err := p.MeterProvider.ForceFlush(ctx); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "obsx.ForceFlush", err)
	}
	return nil
}

// Shutdown flushes and stops the reader. It waits at most shutdownGrace
// even when ctx allows longer.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.MeterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	// The Prometheus reader is pull based and ignores flushes.
	err := multierr.Append(p.MeterProvider.ForceFlush(ctx), p.MeterProvider.Shutdown(ctx))
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "obsx.Shutdown", err)
	}
	return nil
}
