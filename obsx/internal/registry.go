package internal

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"go.eggybyte.com/sysobs/core/errors"
)

// Category groups metrics that are refreshed from the same subsystem.
type Category string

// Metric categories.
const (
	CategoryProcess Category = "process"
	CategoryCPU     Category = "cpu"
	CategoryMemory  Category = "memory"
	CategoryDisk    Category = "disk"
	CategoryNetwork Category = "network"
	CategoryGPU     Category = "gpu"
)

// DefaultCategories is every category except GPU.
var DefaultCategories = []Category{CategoryProcess, CategoryCPU, CategoryMemory, CategoryDisk, CategoryNetwork}

// Metric names.
const (
	ProcessCPUUsage       = "process.cpu.usage"
	ProcessCPUUtilization = "process.cpu.utilization"
	ProcessMemoryUsage    = "process.memory.usage"
	ProcessMemoryVirtual  = "process.memory.virtual"
	ProcessDiskIO         = "process.disk.io"
	ProcessGPUMemoryUsage = "process.gpu.memory.usage"
	SystemCPUUsage        = "system.cpu.usage"
	SystemMemoryUsage     = "system.memory.usage"
	SystemMemoryTotal     = "system.memory.total"
	SystemDiskUsage       = "system.disk.usage"
	SystemDiskIO          = "system.disk.io"
	SystemNetworkIO       = "system.network.io"
	SystemNetworkIORate   = "system.network.io.rate"
	SystemGPUMemoryUsage  = "system.gpu.memory.usage"
)

type valueKind int

const (
	kindFloat valueKind = iota
	kindInt
)

type definition struct {
	name     string
	desc     string
	unit     string
	kind     valueKind
	category Category
}

var definitions = []definition{
	{ProcessCPUUsage, "CPU used by the process, normalized by the number of cores.", "percent", kindFloat, CategoryProcess},
	{ProcessCPUUtilization, "CPU used by the process, where 100 is one full core.", "percent", kindFloat, CategoryProcess},
	{ProcessMemoryUsage, "Physical memory used by the process.", "By", kindInt, CategoryProcess},
	{ProcessMemoryVirtual, "Committed virtual memory of the process.", "By", kindInt, CategoryProcess},
	{ProcessDiskIO, "Disk bytes transferred by the process since the previous sample.", "By", kindInt, CategoryProcess},
	{ProcessGPUMemoryUsage, "GPU memory used by the process.", "By", kindInt, CategoryGPU},
	{SystemCPUUsage, "Busy time of each logical core since the previous sample.", "percent", kindFloat, CategoryCPU},
	{SystemMemoryUsage, "Used host memory.", "By", kindInt, CategoryMemory},
	{SystemMemoryTotal, "Total host memory.", "By", kindInt, CategoryMemory},
	{SystemDiskUsage, "Used space of each mounted disk.", "By", kindInt, CategoryDisk},
	{SystemDiskIO, "Disk bytes transferred since the previous sample.", "By", kindInt, CategoryDisk},
	{SystemNetworkIO, "Network bytes transferred since the previous sample.", "By", kindInt, CategoryNetwork},
	{SystemNetworkIORate, "Network throughput since the previous sample.", "By/s", kindFloat, CategoryNetwork},
	{SystemGPUMemoryUsage, "Used memory of each GPU.", "By", kindInt, CategoryGPU},
}

// Registry holds the instruments of one observer and its callback registration.
type Registry struct {
	floats map[string]metric.Float64ObservableGauge
	ints   map[string]metric.Int64ObservableGauge
	reg    metric.Registration
}

// NewRegistry creates one observable gauge per metric of the enabled categories
// and registers a single callback that observes whatever latest returns.
// Nothing is registered when instrument creation fails.
func NewRegistry(meter metric.Meter, enabled map[Category]bool, latest func() *Sample) (*Registry, error) {
	r := &Registry{
		floats: make(map[string]metric.Float64ObservableGauge),
		ints:   make(map[string]metric.Int64ObservableGauge),
	}

	var insts []metric.Observable
	for _, d := range definitions {
		if !enabled[d.category] {
			continue
		}
		switch d.kind {
		case kindFloat:
			g, err := meter.Float64ObservableGauge(d.name, metric.WithDescription(d.desc), metric.WithUnit(d.unit))
			if err != nil {
				return nil, errors.Wrapf(errors.CodeInternal, "obsx.register", err, "instrument %s", d.name)
			}
			r.floats[d.name] = g
			insts = append(insts, g)
		case kindInt:
			g, err := meter.Int64ObservableGauge(d.name, metric.WithDescription(d.desc), metric.WithUnit(d.unit))
			if err != nil {
				return nil, errors.Wrapf(errors.CodeInternal, "obsx.register", err, "instrument %s", d.name)
			}
			r.ints[d.name] = g
			insts = append(insts, g)
		}
	}
	if len(insts) == 0 {
		return r, nil
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := latest()
		if s == nil {
			return nil
		}
		r.observe(o, s)
		return nil
	}, insts...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.register", err)
	}
	r.reg = reg
	return r, nil
}

func (r *Registry) observe(o metric.Observer, s *Sample) {
	for name, points := range s.Points {
		if g, ok := r.floats[name]; ok {
			for _, p := range points {
				o.ObserveFloat64(g, p.Float, metric.WithAttributeSet(p.Attrs))
			}
			continue
		}
		if g, ok := r.ints[name]; ok {
			for _, p := range points {
				o.ObserveInt64(g, p.Int, metric.WithAttributeSet(p.Attrs))
			}
		}
	}
}

// Names returns the names of the registered instruments.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.floats)+len(r.ints))
	for _, d := range definitions {
		_, f := r.floats[d.name]
		_, i := r.ints[d.name]
		if f || i {
			names = append(names, d.name)
		}
	}
	return names
}

// Unregister removes the callback. Instruments stay with the meter but
// report nothing afterwards.
func (r *Registry) Unregister() error {
	if r.reg == nil {
		return nil
	}
	err := r.reg.Unregister()
	r.reg = nil
	return err
}
