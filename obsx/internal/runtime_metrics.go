package internal

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"go.eggybyte.com/sysobs/core/errors"
)

// EnableRuntimeMetrics starts the contrib Go runtime instrumentation
// (goroutines, GC, heap) on the provider. Only the first call has an effect.
func (p *Provider) EnableRuntimeMetrics() error {
	p.runtimeOnce.Do(func() {
		err := runtime.Start(
			runtime.WithMeterProvider(p.MeterProvider),
			runtime.WithMinimumReadMemStatsInterval(15*time.Second),
		)
		p.runtimeErr = errors.Wrap(errors.CodeInternal, "obsx.runtime", err)
	})
	return p.runtimeErr
}
