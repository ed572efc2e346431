//go:build !(linux && cgo)

package main

import (
	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/hostx"
)

func openGPU() (hostx.GPUSource, error) {
	return nil, errors.New(errors.CodeUnavailable, "gpu metrics require linux with cgo")
}
