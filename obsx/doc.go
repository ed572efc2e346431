// Package obsx samples process and host metrics into OpenTelemetry.
//
// # Overview
//
// obsx constructs an OpenTelemetry meter provider with a Prometheus, OTLP or
// stdout exporter and runs an Observer that, on a fixed interval, refreshes
// the enabled OS subsystems, computes per-interval deltas of cumulative
// counters and publishes every value through asynchronous gauges. Collection
// always sees the most recent sample; labels of resources that disappeared
// are never re-emitted.
//
// # Features
//
//   - Process CPU, memory and disk IO with pid/executable/command labels
//   - Per-core CPU, host memory, per-disk usage and IO, per-interface network IO and rate
//   - Optional GPU memory per device and per process
//   - Counter resets clamp to zero and restart from a new baseline
//   - Per-subsystem failure isolation
//   - Go runtime metrics via contrib instrumentation
//   - Graceful shutdown with bounded timeouts
//
// # Usage
//
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//		ServiceName:    "batch-worker",
//		ServiceVersion: "1.0.0",
//		Exporter:       obsx.ExporterOTLP,
//		OTLPEndpoint:   "otel-collector:4317",
//		Insecure:       true,
//	})
//	if err != nil { panic(err) }
//	defer provider.Shutdown(ctx)
//
//	observer, err := obsx.NewObserver(ctx, provider.Meter("worker"), obsx.ObserverOptions{
//		CustomLabels: map[string]string{"queue": "jobs"},
//	})
//	if errors.Is(err, obsx.ErrProcessNotFound) { ... }
//	go observer.Run(ctx)
//
// # Layer
//
// obsx depends on core and hostx only.
//
// # Stability
//
// Stable since v0.1.0.
package obsx
