// Package internal contains the runtime implementation.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"

	"go.eggybyte.com/sysobs/core/errors"
)

// HealthChecker defines the interface for health checks.
// Implementations should perform quick checks and honor context deadlines.
type HealthChecker interface {
	// Name returns the name of the health check.
	Name() string
	// Check performs the health check and returns an error if unhealthy.
	Check(ctx context.Context) error
}

// CheckHealth runs every checker and combines the failures, each prefixed
// with the checker name. Returns nil when all pass.
func CheckHealth(ctx context.Context, checkers []HealthChecker) error {
	var err error
	for _, checker := range checkers {
		if cerr := checker.Check(ctx); cerr != nil {
			err = multierr.Append(err, errors.Wrap(errors.CodeUnavailable, checker.Name(), cerr))
		}
	}
	return err
}

// NewHealthHandler serves liveness on /livez and readiness on /health and
// /readyz. Readiness runs the checkers with the given timeout.
func NewHealthHandler(checkers []HealthChecker, timeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	ready := func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := CheckHealth(ctx, checkers); err != nil {
			var b strings.Builder
			for _, e := range multierr.Errors(err) {
				fmt.Fprintln(&b, e.Error())
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(b.String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
	mux.HandleFunc("/health", ready)
	mux.HandleFunc("/readyz", ready)

	return mux
}
