// Package testingx provides testing helpers and fakes for sysobs packages.
//
// # Overview
//
// testingx contains small utilities to speed up unit tests: a mock logger
// with in-memory capture and helpers that read OpenTelemetry measurements
// through a manual reader.
//
// # Features
//
//   - MockLogger with in-memory capture and assertions
//   - NewMeter/Collect around sdkmetric.ManualReader
//   - Gauge point lookup by metric name and attributes
//   - Error assertion helpers for core/errors codes
//
// # Usage
//
//	meter, reader := testingx.NewMeter(t)
//	// register instruments on meter
//	rm := testingx.Collect(t, reader)
//	points := testingx.IntGauge(t, rm, "system.memory.usage")
//
// # Layer
//
// testingx is an auxiliary package for tests only and depends on core packages.
//
// # Stability
//
// Stable since v0.1.0.
package testingx
