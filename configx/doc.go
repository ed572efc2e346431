// Package configx provides layered configuration with hot reload for sysobs.
//
// # Overview
//
// configx merges configuration sources (environment, YAML/JSON files) with
// last-wins semantics and binds the result into structs through env/default
// tags. File sources are watched with fsnotify and updates are debounced
// before subscribers see them.
//
// # Features
//
//   - Environment and YAML/JSON file sources
//   - Type-safe struct binding, including durations with a unit tag, lists and k=v maps
//   - Debounced hot updates with subscription callbacks
//   - go-playground/validator integration
//   - ObserverConfig for the sysobs host program
//
// # Usage
//
//	cfg, err := configx.LoadObserverConfig(ctx, logger)
//	if err != nil {
//		return err
//	}
//
// or, with explicit sources:
//
//	mgr, err := configx.NewManager(ctx, configx.Options{
//		Logger: logger,
//		Sources: []configx.Source{
//			configx.NewEnvSource(configx.EnvOptions{}),
//			configx.NewFileSource("/etc/sysobs.yaml", configx.FileOptions{}),
//		},
//	})
//
// # Layer
//
// configx belongs to Layer 2 (L2) and depends on core.
//
// # Stability
//
// Stable since v0.1.0. Backward-compatible API changes may occur with minor versions.
package configx
