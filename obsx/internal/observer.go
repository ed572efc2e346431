package internal

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tilinna/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
	"go.eggybyte.com/sysobs/hostx"
)

// DefaultInterval is the sampling interval used when none is configured.
const DefaultInterval = 5 * time.Second

// ObserverOptions configures an Observer. Zero values select defaults.
type ObserverOptions struct {
	PID          int32
	Interval     time.Duration
	Categories   []Category
	GPU          hostx.GPUSource // required when CategoryGPU is enabled
	CustomLabels map[string]string
	Source       hostx.Source
	Logger       log.Logger
	Clock        clock.Clock
	Iterations   int
}

// Observer samples one process and the host on an interval and publishes the
// values through observable gauges.
type Observer struct {
	src        hostx.Source
	gpu        hostx.GPUSource
	logger     log.Logger
	clock      clock.Clock
	interval   time.Duration
	iterations int
	enabled    map[Category]bool

	info   hostx.ProcessInfo
	cores  int
	custom []attribute.KeyValue
	proc   []attribute.KeyValue

	registry *Registry
	latest   atomic.Pointer[Sample]
	lastTick atomic.Int64
	ticks    atomic.Int64

	// Tick state, guarded by tickMu.
	tickMu      sync.Mutex
	processGone bool
	netIO       *Counters
	diskIO      *Counters
	procIO      *Counters
	lastNetRead time.Time

	// Lifecycle, guarded by mu.
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown bool
}

// NewObserver resolves the process and registers the instruments of the
// enabled categories with meter. When the process cannot be resolved it
// returns an error matching hostx.ErrProcessNotFound and registers nothing.
//
// Observers sharing a meter report through the same instruments. Process
// series differ by process.pid, but host series only differ by
// CustomLabels; without them the value observed last wins.
func NewObserver(ctx context.Context, meter metric.Meter, opts ObserverOptions) (*Observer, error) {
	if meter == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "meter is required")
	}
	if opts.Interval < 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "interval must not be negative")
	}
	if opts.Iterations < 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "iterations must not be negative")
	}

	o := &Observer{
		src:        opts.Source,
		gpu:        opts.GPU,
		logger:     opts.Logger,
		clock:      opts.Clock,
		interval:   opts.Interval,
		iterations: opts.Iterations,
		enabled:    make(map[Category]bool),
		netIO:      NewCounters(),
		diskIO:     NewCounters(),
		procIO:     NewCounters(),
	}
	if o.src == nil {
		o.src = hostx.NewSource()
	}
	if o.logger == nil {
		o.logger = log.Nop()
	}
	if o.clock == nil {
		o.clock = clock.Realtime()
	}
	if o.interval == 0 {
		o.interval = DefaultInterval
	}

	cats := opts.Categories
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	for _, c := range cats {
		o.enabled[c] = true
	}
	if o.enabled[CategoryGPU] && o.gpu == nil {
		o.logger.Warn("gpu metrics requested without a gpu source, reporting none")
		o.gpu = hostx.NopGPU()
	}

	pid := opts.PID
	if pid == 0 {
		pid = int32(os.Getpid())
	}
	info, err := o.src.LookupProcess(ctx, pid)
	if err != nil {
		return nil, err
	}
	o.info = info
	o.proc = processAttrs(info)
	o.custom = customAttrs(opts.CustomLabels)

	if o.enabled[CategoryProcess] {
		cores, err := o.src.CPUCores(ctx)
		if err != nil {
			o.logger.Warn("core count unavailable", "fallback", cores, "error", err)
		}
		if cores < 1 {
			cores = 1
		}
		o.cores = cores
	}

	reg, err := NewRegistry(meter, o.enabled, o.Latest)
	if err != nil {
		return nil, err
	}
	o.registry = reg
	o.lastTick.Store(o.clock.Now().UnixNano())
	o.logger = o.logger.With("pid", int64(pid))

	o.logger.Info("observer registered",
		log.Str("process", info.Name),
		log.Dur("interval", o.interval),
		log.Int("instruments", len(reg.Names())))
	return o, nil
}

// Process returns the identity resolved at construction.
func (o *Observer) Process() hostx.ProcessInfo {
	return o.info
}

// Latest returns the most recently published sample, or nil before the first tick.
func (o *Observer) Latest() *Sample {
	return o.latest.Load()
}

// Instruments returns the names of the registered instruments.
func (o *Observer) Instruments() []string {
	return o.registry.Names()
}

// Ticks returns the number of completed ticks.
func (o *Observer) Ticks() int64 {
	return o.ticks.Load()
}

// ProcessGone reports whether the observed process has exited.
func (o *Observer) ProcessGone() bool {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	return o.processGone
}

// Tick refreshes the enabled subsystems, computes every metric and publishes
// the result. Failed subsystems are logged and omitted from the sample; the
// returned error combines their failures.
func (o *Observer) Tick(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	now := o.clock.Now()
	s := newSample(now)

	var errs error
	if o.enabled[CategoryProcess] && !o.processGone {
		errs = multierr.Append(errs, o.collectProcess(ctx, s))
	}
	if o.enabled[CategoryCPU] {
		errs = multierr.Append(errs, o.collectCPU(ctx, s))
	}
	if o.enabled[CategoryMemory] {
		errs = multierr.Append(errs, o.collectMemory(ctx, s))
	}
	if o.enabled[CategoryDisk] {
		errs = multierr.Append(errs, o.collectDisks(ctx, s))
	}
	if o.enabled[CategoryNetwork] {
		errs = multierr.Append(errs, o.collectNetwork(ctx, s, now))
	}
	if o.enabled[CategoryGPU] {
		errs = multierr.Append(errs, o.collectGPU(ctx, s))
	}

	o.latest.Store(s)
	o.lastTick.Store(now.UnixNano())
	o.ticks.Add(1)
	return errs
}

func (o *Observer) fail(subsystem string, err error) error {
	o.logger.Warn("subsystem read failed, omitting its metrics", log.Str("subsystem", subsystem), "error", err)
	return err
}

func (o *Observer) collectProcess(ctx context.Context, s *Sample) error {
	stat, err := o.src.Process(ctx, o.info.PID)
	if errors.Is(err, hostx.ErrProcessGone) {
		o.processGone = true
		o.logger.Info("process exited, process metrics disabled")
		return nil
	}
	if err != nil {
		return o.fail("process", err)
	}

	attrs := labelSet(o.custom, o.proc)
	s.addFloat(ProcessCPUUsage, stat.CPUPercent/float64(o.cores), attrs)
	s.addFloat(ProcessCPUUtilization, stat.CPUPercent, attrs)
	s.addInt(ProcessMemoryUsage, stat.RSS, attrs)
	s.addInt(ProcessMemoryVirtual, stat.VMS, attrs)

	if !stat.HasIO {
		return nil
	}
	for _, c := range []struct {
		dir   string
		value uint64
	}{{DirRead, stat.ReadBytes}, {DirWrite, stat.WriteBytes}} {
		d := o.delta(o.procIO, c.dir, c.value)
		s.addInt(ProcessDiskIO, d, labelSet(o.custom, o.proc, DirectionKey.String(c.dir)))
	}
	o.procIO.Sweep()
	return nil
}

func (o *Observer) collectCPU(ctx context.Context, s *Sample) error {
	usage, err := o.src.CPU(ctx)
	if err != nil {
		return o.fail("cpu", err)
	}
	for i, u := range usage {
		s.addFloat(SystemCPUUsage, u, labelSet(o.custom, nil, CPUKey.Int(i)))
	}
	return nil
}

func (o *Observer) collectMemory(ctx context.Context, s *Sample) error {
	m, err := o.src.Memory(ctx)
	if err != nil {
		return o.fail("memory", err)
	}
	attrs := labelSet(o.custom, nil)
	s.addInt(SystemMemoryUsage, m.Used, attrs)
	s.addInt(SystemMemoryTotal, m.Total, attrs)
	return nil
}

func (o *Observer) collectDisks(ctx context.Context, s *Sample) error {
	disks, err := o.src.Disks(ctx)
	if err != nil {
		return o.fail("disk", err)
	}
	for _, d := range disks {
		s.addInt(SystemDiskUsage, d.Used, labelSet(o.custom, nil,
			DeviceKey.String(d.Device), MountpointKey.String(d.Mountpoint)))
		if !d.HasIO {
			continue
		}
		read := o.delta(o.diskIO, d.Device+"/"+DirRead, d.ReadBytes)
		write := o.delta(o.diskIO, d.Device+"/"+DirWrite, d.WriteBytes)
		s.addInt(SystemDiskIO, read, labelSet(o.custom, nil, DeviceKey.String(d.Device), DirectionKey.String(DirRead)))
		s.addInt(SystemDiskIO, write, labelSet(o.custom, nil, DeviceKey.String(d.Device), DirectionKey.String(DirWrite)))
	}
	o.diskIO.Sweep()
	return nil
}

func (o *Observer) collectNetwork(ctx context.Context, s *Sample, now time.Time) error {
	ifaces, err := o.src.Interfaces(ctx)
	if err != nil {
		return o.fail("network", err)
	}

	var elapsed float64
	if !o.lastNetRead.IsZero() {
		elapsed = now.Sub(o.lastNetRead).Seconds()
	}
	o.lastNetRead = now

	for _, ifc := range ifaces {
		for _, c := range []struct {
			dir   string
			value uint64
		}{{DirReceive, ifc.BytesRecv}, {DirTransmit, ifc.BytesSent}} {
			d := o.delta(o.netIO, ifc.Name+"/"+c.dir, c.value)
			attrs := labelSet(o.custom, nil, InterfaceKey.String(ifc.Name), DirectionKey.String(c.dir))
			s.addInt(SystemNetworkIO, d, attrs)

			var rate float64
			if elapsed > 0 {
				rate = float64(d) / elapsed
			}
			s.addFloat(SystemNetworkIORate, rate, attrs)
		}
	}
	o.netIO.Sweep()
	return nil
}

func (o *Observer) collectGPU(ctx context.Context, s *Sample) error {
	devices, err := o.gpu.Devices(ctx)
	if err != nil {
		return o.fail("gpu", err)
	}
	for _, d := range devices {
		s.addInt(SystemGPUMemoryUsage, d.MemoryUsed, labelSet(o.custom, nil, GPUIndexKey.Int(d.Index)))
	}

	if o.processGone {
		return nil
	}
	mem, err := o.gpu.ProcessMemory(ctx, o.info.PID)
	if err != nil {
		return o.fail("gpu.process", err)
	}
	for _, m := range mem {
		s.addInt(ProcessGPUMemoryUsage, m.Used, labelSet(o.custom, o.proc, GPUIndexKey.Int(m.Index)))
	}
	return nil
}

func (o *Observer) delta(c *Counters, key string, cur uint64) uint64 {
	d, reset := c.Delta(key, cur)
	if reset {
		o.logger.Debug("counter went backwards, restarting from new baseline", log.Str("counter", key))
	}
	return d
}

// Run ticks every interval until ctx is done or the configured number of
// iterations has completed. The first tick happens one interval after Run is
// called. Tick failures are logged and never stop the loop.
func (o *Observer) Run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.interval)
	defer ticker.Stop()

	for n := 0; o.iterations == 0 || n < o.iterations; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		_ = o.Tick(ctx)
	}
	return nil
}

// Start runs the loop on its own goroutine.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return errors.New(errors.CodeAborted, "observer is shut down")
	}
	if o.done != nil {
		return errors.New(errors.CodeAborted, "observer already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := o.Run(runCtx); err != nil {
			o.logger.Error(err, "observer loop stopped")
		}
	}(o.done)

	o.logger.Info("observer started")
	return nil
}

// Stop cancels the loop started by Start and waits for it to exit or ctx to expire.
// The callback stays registered; use Shutdown to remove it.
func (o *Observer) Stop(ctx context.Context) error {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		o.logger.Info("observer stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.CodeAborted, "obsx.Stop", ctx.Err())
	}
}

// Shutdown stops the loop and unregisters the callback. It is idempotent.
func (o *Observer) Shutdown(ctx context.Context) error {
	err := o.Stop(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return err
	}
	o.shutdown = true
	return multierr.Append(err, o.registry.Unregister())
}

// Name identifies the observer in health reports.
func (o *Observer) Name() string {
	return "observer"
}

// Check fails when no tick has completed within three intervals. Before the
// first tick the grace period runs from construction.
func (o *Observer) Check(context.Context) error {
	last := time.Unix(0, o.lastTick.Load())
	if age := o.clock.Now().Sub(last); age > 3*o.interval {
		return errors.New(errors.CodeUnavailable, "no sample for "+age.Truncate(time.Millisecond).String())
	}
	return nil
}
