package internal

import "context"

// Source yields configuration snapshots keyed by upper-case names.
type Source interface {
	// Load returns the current snapshot. A source with nothing to offer
	// returns an empty or nil map, not an error.
	Load(ctx context.Context) (map[string]string, error)

	// Watch streams replacement snapshots until ctx is done, then closes
	// the channel.
	Watch(ctx context.Context) (<-chan map[string]string, error)
}
