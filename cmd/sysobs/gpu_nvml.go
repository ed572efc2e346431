//go:build linux && cgo

package main

import (
	"go.eggybyte.com/sysobs/hostx"
	"go.eggybyte.com/sysobs/hostx/nvml"
)

func openGPU() (hostx.GPUSource, error) {
	src, err := nvml.New()
	if err != nil {
		return nil, err
	}
	return src, nil
}
