// Package runtimex provides runtime lifecycle orchestration for background
// services together with health and metrics endpoints.
//
// # Overview
//
// runtimex starts services (such as the sysobs Observer), serves a health
// endpoint backed by explicit HealthCheckers and a metrics endpoint backed by
// any http.Handler, and shuts everything down in reverse order.
//
// # Features
//
//   - Servers are bound before services start, so port conflicts fail fast
//   - Services stop in reverse start order with a shared shutdown deadline
//   - /livez always answers; /health and /readyz run the checkers
//   - Failures from every stop step are combined with multierr
//
// # Usage
//
//	err := runtimex.Run(ctx, []runtimex.Service{observer}, runtimex.Options{
//		Logger:         logger,
//		Health:         &runtimex.Endpoint{Addr: ":8081"},
//		HealthCheckers: []runtimex.HealthChecker{observer},
//		Metrics:        &runtimex.Endpoint{Addr: ":9091"},
//		MetricsHandler: provider.PrometheusHandler(),
//	})
//
// # Layer
//
// runtimex belongs to Layer 3 (L3) and depends on core.
//
// # Stability
//
// Stable since v0.1.0.
package runtimex
