package hostx

import (
	"context"
	stderrors "errors"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"go.eggybyte.com/sysobs/core/errors"
)

// processHandle is the subset of *process.Process the source needs.
type processHandle interface {
	NameWithContext(context.Context) (string, error)
	ExeWithContext(context.Context) (string, error)
	CmdlineWithContext(context.Context) (string, error)
	CreateTimeWithContext(context.Context) (int64, error)
	IsRunningWithContext(context.Context) (bool, error)
	PercentWithContext(context.Context, time.Duration) (float64, error)
	MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error)
	IOCountersWithContext(context.Context) (*process.IOCountersStat, error)
}

// gopsSource implements Source with gopsutil.
type gopsSource struct {
	handles   map[int32]processHandle
	lastTimes map[string]cpu.TimesStat

	// for mocking
	newProcess    func(context.Context, int32) (processHandle, error)
	counts        func(context.Context, bool) (int, error)
	times         func(context.Context, bool) ([]cpu.TimesStat, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	partitions    func(context.Context, bool) ([]disk.PartitionStat, error)
	usage         func(context.Context, string) (*disk.UsageStat, error)
	diskIO        func(context.Context, ...string) (map[string]disk.IOCountersStat, error)
	netIO         func(context.Context, bool) ([]net.IOCountersStat, error)
}

// NewSource returns a Source backed by gopsutil.
func NewSource() Source {
	return &gopsSource{
		handles:   make(map[int32]processHandle),
		lastTimes: make(map[string]cpu.TimesStat),
		newProcess: func(ctx context.Context, pid int32) (processHandle, error) {
			return process.NewProcessWithContext(ctx, pid)
		},
		counts:        cpu.CountsWithContext,
		times:         cpu.TimesWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		partitions:    disk.PartitionsWithContext,
		usage:         disk.UsageWithContext,
		diskIO:        disk.IOCountersWithContext,
		netIO:         net.IOCountersWithContext,
	}
}

func (s *gopsSource) LookupProcess(ctx context.Context, pid int32) (ProcessInfo, error) {
	h, err := s.newProcess(ctx, pid)
	if err != nil {
		if stderrors.Is(err, process.ErrorProcessNotRunning) {
			return ProcessInfo{}, errors.Wrapf(errors.CodeNotFound, "hostx.LookupProcess", ErrProcessNotFound, "pid %d", pid)
		}
		return ProcessInfo{}, errors.Wrapf(errors.CodeUnavailable, "hostx.LookupProcess", err, "pid %d", pid)
	}

	// Identity fields are best effort: other users' processes may hide their exe or cmdline.
	info := ProcessInfo{PID: pid}
	info.Name, _ = h.NameWithContext(ctx)
	info.Exe, _ = h.ExeWithContext(ctx)
	info.Command, _ = h.CmdlineWithContext(ctx)
	info.CreateTime, _ = h.CreateTimeWithContext(ctx)

	s.handles[pid] = h
	return info, nil
}

func (s *gopsSource) Process(ctx context.Context, pid int32) (ProcessStat, error) {
	h, ok := s.handles[pid]
	if !ok {
		return ProcessStat{}, errors.Wrapf(errors.CodeNotFound, "hostx.Process", ErrProcessNotFound, "pid %d was never resolved", pid)
	}

	// IsRunning compares creation times, so a recycled pid counts as gone.
	running, err := h.IsRunningWithContext(ctx)
	if err != nil {
		return ProcessStat{}, errors.Wrap(errors.CodeUnavailable, "hostx.Process", err)
	}
	if !running {
		delete(s.handles, pid)
		return ProcessStat{}, ErrProcessGone
	}

	var stat ProcessStat
	if stat.CPUPercent, err = h.PercentWithContext(ctx, 0); err != nil {
		return ProcessStat{}, s.processErr(ctx, pid, h, err)
	}
	mi, err := h.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessStat{}, s.processErr(ctx, pid, h, err)
	}
	stat.RSS, stat.VMS = mi.RSS, mi.VMS

	if io, err := h.IOCountersWithContext(ctx); err == nil && io != nil {
		stat.ReadBytes, stat.WriteBytes, stat.HasIO = io.ReadBytes, io.WriteBytes, true
	}
	return stat, nil
}

// processErr turns a read failure into ErrProcessGone when the process exited mid-read.
func (s *gopsSource) processErr(ctx context.Context, pid int32, h processHandle, err error) error {
	if running, rerr := h.IsRunningWithContext(ctx); rerr == nil && !running {
		delete(s.handles, pid)
		return ErrProcessGone
	}
	return errors.Wrap(errors.CodeUnavailable, "hostx.Process", err)
}

func (s *gopsSource) CPUCores(ctx context.Context) (int, error) {
	n, err := s.counts(ctx, false)
	if err == nil && n > 0 {
		return n, nil
	}
	// Physical counts are unavailable in some VMs and containers.
	if n, err = s.counts(ctx, true); err == nil && n > 0 {
		return n, nil
	}
	if err != nil {
		return runtime.NumCPU(), errors.Wrap(errors.CodeUnavailable, "hostx.CPUCores", err)
	}
	return runtime.NumCPU(), nil
}

func (s *gopsSource) CPU(ctx context.Context) ([]float64, error) {
	times, err := s.times(ctx, true)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "hostx.CPU", err)
	}

	usage := make([]float64, len(times))
	for i, cur := range times {
		if prev, ok := s.lastTimes[cur.CPU]; ok {
			usage[i] = busyPercent(prev, cur)
		}
		s.lastTimes[cur.CPU] = cur
	}
	return usage, nil
}

func (s *gopsSource) Memory(ctx context.Context) (MemoryStat, error) {
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return MemoryStat{}, errors.Wrap(errors.CodeUnavailable, "hostx.Memory", err)
	}
	return MemoryStat{Total: vm.Total, Used: vm.Used}, nil
}

func (s *gopsSource) Disks(ctx context.Context) ([]DiskStat, error) {
	parts, err := s.partitions(ctx, false)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "hostx.Disks", err)
	}

	// IO counters are optional; usage is still reported without them.
	io, ioErr := s.diskIO(ctx)

	seen := make(map[string]bool, len(parts))
	disks := make([]DiskStat, 0, len(parts))
	for _, p := range parts {
		name := deviceName(p.Device)
		if name == "" || seen[name] {
			continue
		}
		u, err := s.usage(ctx, p.Mountpoint)
		if err != nil {
			// Unreadable mounts (permissions, stale network shares) are skipped.
			continue
		}
		seen[name] = true

		d := DiskStat{Device: name, Mountpoint: p.Mountpoint, Total: u.Total, Used: u.Used}
		if ioErr == nil {
			if c, ok := io[name]; ok {
				d.ReadBytes, d.WriteBytes, d.HasIO = c.ReadBytes, c.WriteBytes, true
			}
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func (s *gopsSource) Interfaces(ctx context.Context) ([]InterfaceStat, error) {
	counters, err := s.netIO(ctx, true)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "hostx.Interfaces", err)
	}
	out := make([]InterfaceStat, 0, len(counters))
	for _, c := range counters {
		out = append(out, InterfaceStat{Name: c.Name, BytesRecv: c.BytesRecv, BytesSent: c.BytesSent})
	}
	return out, nil
}

// deviceName maps a partition device to the key gopsutil uses for IO counters.
func deviceName(device string) string {
	return strings.TrimPrefix(device, "/dev/")
}

func busyPercent(prev, cur cpu.TimesStat) float64 {
	total := totalTime(cur) - totalTime(prev)
	if total <= 0 {
		return 0
	}
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	pct := (total - idle) / total * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// totalTime excludes guest time, which Linux already counts in user time.
func totalTime(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
}
