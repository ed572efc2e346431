// Package internal implements configuration layering for configx.
package internal

import (
	"context"
	"sync"
	"time"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
)

// DefaultDebounce is how long a source must stay quiet before its latest
// snapshot is applied.
const DefaultDebounce = 200 * time.Millisecond

// Manager layers the snapshots of several sources. Each source owns one
// layer; later layers win and empty values never override.
type Manager struct {
	logger   log.Logger
	sources  []Source
	debounce time.Duration

	mu     sync.RWMutex
	layers []map[string]string
	merged map[string]string

	subsMu sync.Mutex
	subs   map[uint64]func(map[string]string)
	nextID uint64
}

// NewManager validates its arguments; nothing is loaded until Start.
func NewManager(logger log.Logger, sources []Source, debounce time.Duration) (*Manager, error) {
	if logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "at least one source is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Manager{
		logger:   logger,
		sources:  sources,
		debounce: debounce,
		layers:   make([]map[string]string, len(sources)),
		merged:   map[string]string{},
		subs:     map[uint64]func(map[string]string){},
	}, nil
}

// Start loads every source, then follows their updates until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	layers := make([]map[string]string, len(m.sources))
	for i, src := range m.sources {
		snapshot, err := src.Load(ctx)
		if err != nil {
			return errors.Wrapf(errors.CodeUnavailable, "configx.Load", err, "source %d", i)
		}
		layers[i] = snapshot
	}

	m.mu.Lock()
	m.layers = layers
	m.merged = merge(layers)
	keys := len(m.merged)
	m.mu.Unlock()
	m.logger.Info("configuration loaded", log.Int("sources", len(layers)), log.Int("keys", keys))

	for i, src := range m.sources {
		updates, err := src.Watch(ctx)
		if err != nil {
			return errors.Wrapf(errors.CodeUnavailable, "configx.Watch", err, "source %d", i)
		}
		go m.follow(ctx, i, updates)
	}
	return nil
}

// follow applies the last snapshot of a burst once the source has been
// quiet for the debounce period.
func (m *Manager) follow(ctx context.Context, layer int, updates <-chan map[string]string) {
	var (
		pending map[string]string
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			pending = snapshot
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			m.replace(layer, pending)
		}
	}
}

// replace swaps one layer and notifies subscribers on the caller's goroutine.
func (m *Manager) replace(layer int, snapshot map[string]string) {
	m.mu.Lock()
	m.layers[layer] = snapshot
	merged := merge(m.layers)
	m.merged = merged
	m.mu.Unlock()

	m.logger.Info("configuration updated", log.Int("source", layer), log.Int("keys", len(merged)))

	m.subsMu.Lock()
	subs := make([]func(map[string]string), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(copyMap(merged))
	}
}

func merge(layers []map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			if v != "" {
				merged[k] = v
			}
		}
	}
	return merged
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the merged configuration.
func (m *Manager) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.merged)
}

// Value returns the merged value for key.
func (m *Manager) Value(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.merged[key]
	return v, ok
}

// Bind decodes the configuration into target. With onUpdate set, target is
// re-bound on every update before onUpdate runs; callers synchronize their
// own reads of target.
func (m *Manager) Bind(target any, onUpdate func()) error {
	if target == nil {
		return errors.New(errors.CodeInvalidArgument, "target cannot be nil")
	}
	if err := BindToStruct(m.Snapshot(), target); err != nil {
		return err
	}
	if onUpdate == nil {
		return nil
	}

	m.OnUpdate(func(snapshot map[string]string) {
		if err := BindToStruct(snapshot, target); err != nil {
			m.logger.Error(err, "rebind after configuration update failed")
			return
		}
		onUpdate()
	})
	return nil
}

// OnUpdate registers fn for merged snapshots after each applied update and
// returns a function that removes it.
func (m *Manager) OnUpdate(fn func(snapshot map[string]string)) func() {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}
