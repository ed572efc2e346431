package internal

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"go.eggybyte.com/sysobs/hostx"
)

// Label keys that have no semantic-convention helper of their own.
const (
	CPUKey        = attribute.Key("cpu")
	DeviceKey     = attribute.Key("device")
	MountpointKey = attribute.Key("mountpoint")
	InterfaceKey  = attribute.Key("interface")
	DirectionKey  = attribute.Key("direction")
	GPUIndexKey   = attribute.Key("gpu.index")
)

// Direction values.
const (
	DirRead     = "read"
	DirWrite    = "write"
	DirReceive  = "receive"
	DirTransmit = "transmit"
)

// processAttrs returns the identity labels of a resolved process.
func processAttrs(info hostx.ProcessInfo) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ProcessPID(int(info.PID)),
		semconv.ProcessExecutableName(info.Name),
		semconv.ProcessExecutablePath(info.Exe),
		semconv.ProcessCommand(info.Command),
	}
}

// customAttrs converts static labels to attributes.
func customAttrs(labels map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}

// labelSet merges custom, base and extra labels into one set. Later groups
// win on key collisions, so built-in labels cannot be shadowed by custom ones.
func labelSet(custom, base []attribute.KeyValue, extra ...attribute.KeyValue) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(custom)+len(base)+len(extra))
	kvs = append(kvs, custom...)
	kvs = append(kvs, base...)
	kvs = append(kvs, extra...)
	return attribute.NewSet(kvs...)
}
