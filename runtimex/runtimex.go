package runtimex

import (
	"context"
	"net/http"
	"time"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
	"go.eggybyte.com/sysobs/runtimex/internal"
)

// Service defines the interface for services that can be started and stopped.
type Service interface {
	// Start begins the service operation. It must not block.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service within the ctx deadline.
	Stop(ctx context.Context) error
}

// HealthChecker reports the health of one component for the readiness
// endpoint.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Endpoint represents a network endpoint with an address.
type Endpoint struct {
	Addr string // Network address (e.g., ":8081", "localhost:9091")
}

// Options holds configuration for the runtime.
type Options struct {
	Logger          log.Logger      // Logger for runtime operations
	Health          *Endpoint       // Health endpoint (/health, /readyz, /livez)
	HealthCheckers  []HealthChecker // Consulted by /health and /readyz
	HealthTimeout   time.Duration   // Per-request readiness timeout (default: 2s)
	Metrics         *Endpoint       // Metrics endpoint
	MetricsHandler  http.Handler    // Served on /metrics; required with Metrics
	ShutdownTimeout time.Duration   // Graceful shutdown timeout (default: 15s)
}

// Runtime runs services together with their health and metrics servers.
type Runtime struct {
	impl *internal.Runtime
}

// New validates opts and prepares a runtime. Nothing is started until Start.
func New(services []Service, opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}
	if opts.Metrics != nil && opts.MetricsHandler == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "metrics endpoint requires a handler")
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout == 0 {
		healthTimeout = 2 * time.Second
	}

	internalServices := make([]internal.Service, len(services))
	for i, service := range services {
		internalServices[i] = service
	}
	rt := internal.NewRuntime(opts.Logger, internalServices, shutdownTimeout)

	if opts.Health != nil {
		checkers := make([]internal.HealthChecker, len(opts.HealthCheckers))
		for i, c := range opts.HealthCheckers {
			checkers[i] = c
		}
		rt.AddServer("health", opts.Health.Addr, internal.NewHealthHandler(checkers, healthTimeout))
	}

	if opts.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", opts.MetricsHandler)
		rt.AddServer("metrics", opts.Metrics.Addr, mux)
	}

	return &Runtime{impl: rt}, nil
}

// Start binds the servers and starts the services.
func (r *Runtime) Start(ctx context.Context) error { return r.impl.Start(ctx) }

// Stop stops the services and servers.
func (r *Runtime) Stop(ctx context.Context) error { return r.impl.Stop(ctx) }

// HealthAddr returns the bound health address after Start.
func (r *Runtime) HealthAddr() string { return r.impl.Addr("health") }

// MetricsAddr returns the bound metrics address after Start.
func (r *Runtime) MetricsAddr() string { return r.impl.Addr("metrics") }

// Run starts all services and blocks until ctx is cancelled, then stops
// them gracefully.
func Run(ctx context.Context, services []Service, opts Options) error {
	rt, err := New(services, opts)
	if err != nil {
		return err
	}

	if err := rt.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return rt.Stop(context.WithoutCancel(ctx))
}
