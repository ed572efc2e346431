//go:build linux && cgo

package nvml

import (
	"context"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/hostx"
)

// driver is the slice of the NVML library the source calls.
type driver interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(int) (device, nvml.Return)
}

type device interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetComputeRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
}

type libDriver struct{}

func (libDriver) Init() nvml.Return                  { return nvml.Init() }
func (libDriver) Shutdown() nvml.Return              { return nvml.Shutdown() }
func (libDriver) DeviceGetCount() (int, nvml.Return) { return nvml.DeviceGetCount() }

func (libDriver) DeviceGetHandleByIndex(i int) (device, nvml.Return) {
	d, ret := nvml.DeviceGetHandleByIndex(i)
	return d, ret
}

// Source implements hostx.GPUSource on top of NVML.
type Source struct {
	drv     driver
	devices []device
	names   []string

	closeOnce sync.Once
	closeErr  error
}

// New initializes NVML and enumerates devices.
// It fails with UNAVAILABLE when the driver library is missing.
func New() (*Source, error) {
	return newSource(libDriver{})
}

func newSource(drv driver) (*Source, error) {
	if ret := drv.Init(); ret != nvml.SUCCESS {
		return nil, retErr("nvml.Init", ret)
	}

	count, ret := drv.DeviceGetCount()
	if ret != nvml.SUCCESS {
		_ = drv.Shutdown()
		return nil, retErr("nvml.DeviceGetCount", ret)
	}

	s := &Source{drv: drv}
	for i := 0; i < count; i++ {
		d, ret := drv.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			_ = drv.Shutdown()
			return nil, retErr("nvml.DeviceGetHandleByIndex", ret)
		}
		name, ret := d.GetName()
		if ret != nvml.SUCCESS {
			name = ""
		}
		s.devices = append(s.devices, d)
		s.names = append(s.names, name)
	}
	return s, nil
}

// Devices returns memory usage of every GPU.
func (s *Source) Devices(ctx context.Context) ([]hostx.GPUDevice, error) {
	out := make([]hostx.GPUDevice, 0, len(s.devices))
	for i, d := range s.devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mem, ret := d.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			return nil, retErr("nvml.GetMemoryInfo", ret)
		}
		out = append(out, hostx.GPUDevice{
			Index:       i,
			Name:        s.names[i],
			MemoryUsed:  mem.Used,
			MemoryTotal: mem.Total,
		})
	}
	return out, nil
}

// ProcessMemory returns the GPU memory pid holds on each device it runs on.
// Devices where pid has no compute context are omitted.
func (s *Source) ProcessMemory(ctx context.Context, pid int32) ([]hostx.GPUProcessMemory, error) {
	var out []hostx.GPUProcessMemory
	for i, d := range s.devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		procs, ret := d.GetComputeRunningProcesses()
		if ret != nvml.SUCCESS {
			return nil, retErr("nvml.GetComputeRunningProcesses", ret)
		}

		var used uint64
		found := false
		for _, p := range procs {
			if int32(p.Pid) == pid {
				used += p.UsedGpuMemory
				found = true
			}
		}
		if found {
			out = append(out, hostx.GPUProcessMemory{Index: i, Used: used})
		}
	}
	return out, nil
}

// Close shuts NVML down. Further calls are no-ops.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if ret := s.drv.Shutdown(); ret != nvml.SUCCESS {
			s.closeErr = retErr("nvml.Shutdown", ret)
		}
	})
	return s.closeErr
}

func retErr(op string, ret nvml.Return) error {
	return errors.New(errors.CodeUnavailable, op+": "+nvml.ErrorString(ret))
}

var _ hostx.GPUSource = (*Source)(nil)
