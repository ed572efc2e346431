// Package hostxtest provides in-memory hostx sources for tests.
package hostxtest

import (
	"context"
	"sync"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/hostx"
)

// Source is a scriptable hostx.Source. The zero value reports nothing and
// knows no processes. All setters are safe to call while an observer ticks.
type Source struct {
	mu sync.Mutex

	procs      map[int32]hostx.ProcessInfo
	stats      map[int32]hostx.ProcessStat
	gone       map[int32]bool
	cores      int
	cpu        []float64
	memory     hostx.MemoryStat
	disks      []hostx.DiskStat
	interfaces []hostx.InterfaceStat
	errs       map[string]error
	calls      map[string]int
}

// NewSource returns a Source with one core and no processes.
func NewSource() *Source {
	return &Source{cores: 1}
}

// AddProcess registers a live process.
func (s *Source) AddProcess(info hostx.ProcessInfo, stat hostx.ProcessStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.procs == nil {
		s.procs = make(map[int32]hostx.ProcessInfo)
		s.stats = make(map[int32]hostx.ProcessStat)
		s.gone = make(map[int32]bool)
	}
	s.procs[info.PID] = info
	s.stats[info.PID] = stat
	delete(s.gone, info.PID)
}

// SetProcessStat replaces the reading of a registered process.
func (s *Source) SetProcessStat(pid int32, stat hostx.ProcessStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats != nil {
		s.stats[pid] = stat
	}
}

// ExitProcess marks pid as exited.
func (s *Source) ExitProcess(pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone != nil {
		s.gone[pid] = true
	}
}

// SetCores sets the core count.
func (s *Source) SetCores(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cores = n
}

// SetCPU sets per-core busy percentages.
func (s *Source) SetCPU(usage ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu = usage
}

// SetMemory sets host memory.
func (s *Source) SetMemory(m hostx.MemoryStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = m
}

// SetDisks sets the mounted disks.
func (s *Source) SetDisks(disks ...hostx.DiskStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disks = disks
}

// SetInterfaces sets the network interfaces.
func (s *Source) SetInterfaces(ifaces ...hostx.InterfaceStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interfaces = ifaces
}

// Fail makes the named method return err until cleared with a nil err.
// Names are the method names, e.g. "Disks".
func (s *Source) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	if err == nil {
		delete(s.errs, method)
		return
	}
	s.errs[method] = err
}

// Calls returns how many times method was invoked.
func (s *Source) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// enter records a call and returns the configured failure, if any. Caller holds mu.
func (s *Source) enter(method string) error {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[method]++
	if err := s.errs[method]; err != nil {
		return errors.Wrap(errors.CodeUnavailable, "hostxtest."+method, err)
	}
	return nil
}

func (s *Source) LookupProcess(_ context.Context, pid int32) (hostx.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LookupProcess"); err != nil {
		return hostx.ProcessInfo{}, err
	}
	info, ok := s.procs[pid]
	if !ok || s.gone[pid] {
		return hostx.ProcessInfo{}, errors.Wrapf(errors.CodeNotFound, "hostxtest.LookupProcess", hostx.ErrProcessNotFound, "pid %d", pid)
	}
	return info, nil
}

func (s *Source) Process(_ context.Context, pid int32) (hostx.ProcessStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Process"); err != nil {
		return hostx.ProcessStat{}, err
	}
	if _, ok := s.procs[pid]; !ok {
		return hostx.ProcessStat{}, hostx.ErrProcessNotFound
	}
	if s.gone[pid] {
		return hostx.ProcessStat{}, hostx.ErrProcessGone
	}
	return s.stats[pid], nil
}

func (s *Source) CPUCores(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CPUCores"); err != nil {
		return 0, err
	}
	return s.cores, nil
}

func (s *Source) CPU(context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CPU"); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.cpu...), nil
}

func (s *Source) Memory(context.Context) (hostx.MemoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Memory"); err != nil {
		return hostx.MemoryStat{}, err
	}
	return s.memory, nil
}

func (s *Source) Disks(context.Context) ([]hostx.DiskStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Disks"); err != nil {
		return nil, err
	}
	return append([]hostx.DiskStat(nil), s.disks...), nil
}

func (s *Source) Interfaces(context.Context) ([]hostx.InterfaceStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Interfaces"); err != nil {
		return nil, err
	}
	return append([]hostx.InterfaceStat(nil), s.interfaces...), nil
}

// GPU is a scriptable hostx.GPUSource.
type GPU struct {
	mu      sync.Mutex
	devices []hostx.GPUDevice
	procMem map[int32][]hostx.GPUProcessMemory
	err     error
	closed  bool
}

// NewGPU returns a GPU reporting the given devices.
func NewGPU(devices ...hostx.GPUDevice) *GPU {
	return &GPU{devices: devices, procMem: make(map[int32][]hostx.GPUProcessMemory)}
}

// SetProcessMemory sets the GPU memory used by pid.
func (g *GPU) SetProcessMemory(pid int32, mem ...hostx.GPUProcessMemory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.procMem[pid] = mem
}

// Fail makes every read return err. A nil err clears the failure.
func (g *GPU) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Closed reports whether Close was called.
func (g *GPU) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *GPU) Devices(context.Context) ([]hostx.GPUDevice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "hostxtest.GPU.Devices", g.err)
	}
	return append([]hostx.GPUDevice(nil), g.devices...), nil
}

func (g *GPU) ProcessMemory(_ context.Context, pid int32) ([]hostx.GPUProcessMemory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "hostxtest.GPU.ProcessMemory", g.err)
	}
	return append([]hostx.GPUProcessMemory(nil), g.procMem[pid]...), nil
}

func (g *GPU) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

var (
	_ hostx.Source    = (*Source)(nil)
	_ hostx.GPUSource = (*GPU)(nil)
)
