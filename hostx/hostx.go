// Package hostx exposes the OS metrics provider used by the observer.
//
// Overview:
//   - Responsibility: Enumerate processes, CPUs, memory, disks, network interfaces and GPUs
//   - Key Types: Source (host), GPUSource (optional GPU capability), stat structs
//   - Concurrency Model: A Source is owned by a single observer; it is not safe for concurrent use
//   - Error Semantics: ErrProcessNotFound at lookup, ErrProcessGone once a tracked process exits,
//     UNAVAILABLE-coded errors for subsystem read failures
//
// Usage:
//
//	src := hostx.NewSource()
//	info, err := src.LookupProcess(ctx, int32(os.Getpid()))
//	ifaces, err := src.Interfaces(ctx)
package hostx

import (
	"context"

	"go.eggybyte.com/sysobs/core/errors"
)

var (
	// ErrProcessNotFound is returned when a pid cannot be resolved.
	ErrProcessNotFound = errors.New(errors.CodeNotFound, "process not found")

	// ErrProcessGone is returned when a previously resolved process has exited.
	ErrProcessGone = errors.New(errors.CodeNotFound, "process exited")
)

// ProcessInfo identifies a process. It is resolved once and never refreshed.
type ProcessInfo struct {
	PID        int32
	Name       string // executable name
	Exe        string // executable path
	Command    string // full command line
	CreateTime int64  // milliseconds since epoch
}

// ProcessStat is a point-in-time reading of a process.
type ProcessStat struct {
	CPUPercent float64 // percent of one CPU since the previous reading, may exceed 100
	RSS        uint64  // resident set size in bytes
	VMS        uint64  // virtual memory size in bytes
	ReadBytes  uint64  // cumulative bytes read
	WriteBytes uint64  // cumulative bytes written
	HasIO      bool    // false when IO counters are not readable (permissions, platform)
}

// MemoryStat is host memory in bytes.
type MemoryStat struct {
	Total uint64
	Used  uint64
}

// DiskStat describes one mounted disk.
type DiskStat struct {
	Device     string // device name, e.g. "sda1" or "C:"
	Mountpoint string
	Total      uint64
	Used       uint64
	ReadBytes  uint64 // cumulative
	WriteBytes uint64 // cumulative
	HasIO      bool
}

// InterfaceStat holds cumulative counters of one network interface.
type InterfaceStat struct {
	Name      string
	BytesRecv uint64
	BytesSent uint64
}

// GPUDevice is one GPU and its memory usage.
type GPUDevice struct {
	Index       int
	Name        string
	MemoryUsed  uint64
	MemoryTotal uint64
}

// GPUProcessMemory is the GPU memory held by a process on one device.
type GPUProcessMemory struct {
	Index int
	Used  uint64
}

// Source is the host metrics provider.
// Every method reads fresh values from the OS; only the subsystems asked for are touched.
type Source interface {
	// LookupProcess resolves pid. Returns ErrProcessNotFound if it does not exist.
	LookupProcess(ctx context.Context, pid int32) (ProcessInfo, error)
	// Process reads the current state of a resolved process. Returns ErrProcessGone after exit.
	Process(ctx context.Context, pid int32) (ProcessStat, error)
	// CPUCores returns the core count used to normalize process CPU usage.
	CPUCores(ctx context.Context) (int, error)
	// CPU returns busy percent per logical core since the previous call.
	CPU(ctx context.Context) ([]float64, error)
	// Memory returns host memory usage.
	Memory(ctx context.Context) (MemoryStat, error)
	// Disks returns usage and IO counters of mounted disks.
	Disks(ctx context.Context) ([]DiskStat, error)
	// Interfaces returns cumulative counters of network interfaces.
	Interfaces(ctx context.Context) ([]InterfaceStat, error)
}

// GPUSource is the optional GPU capability.
type GPUSource interface {
	// Devices returns memory usage per GPU.
	Devices(ctx context.Context) ([]GPUDevice, error)
	// ProcessMemory returns GPU memory used by pid on each device it runs on.
	ProcessMemory(ctx context.Context, pid int32) ([]GPUProcessMemory, error)
	// Close releases the underlying driver.
	Close() error
}

// NopGPU returns a GPUSource that reports no devices.
func NopGPU() GPUSource {
	return nopGPU{}
}

type nopGPU struct{}

func (nopGPU) Devices(context.Context) ([]GPUDevice, error) { return nil, nil }

func (nopGPU) ProcessMemory(context.Context, int32) ([]GPUProcessMemory, error) {
	return nil, nil
}

func (nopGPU) Close() error { return nil }
