// Package nvml reports NVIDIA GPU memory through the NVML driver library.
//
// The package only has an implementation on linux with cgo. Elsewhere New
// is not defined and callers fall back to hostx.NopGPU.
//
// Usage:
//
//	gpu, err := nvml.New()
//	if err != nil {
//		gpu = hostx.NopGPU()
//	}
//	defer gpu.Close()
package nvml
