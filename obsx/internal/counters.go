package internal

// Counters tracks the last cumulative value of one counter family, keyed by
// resource, e.g. "eth0/receive". It is owned by the tick goroutine.
type Counters struct {
	last map[string]uint64
	seen map[string]struct{}
}

// NewCounters returns an empty tracker.
func NewCounters() *Counters {
	return &Counters{
		last: make(map[string]uint64),
		seen: make(map[string]struct{}),
	}
}

// Delta records cur for key and returns the increase since the previous reading.
// A key without a previous reading yields 0 and becomes the baseline. A reading
// lower than the previous one yields 0, resets the baseline and reports reset.
func (c *Counters) Delta(key string, cur uint64) (delta uint64, reset bool) {
	c.seen[key] = struct{}{}
	prev, ok := c.last[key]
	c.last[key] = cur
	switch {
	case !ok:
		return 0, false
	case cur < prev:
		return 0, true
	default:
		return cur - prev, false
	}
}

// Sweep drops every key not passed to Delta since the previous Sweep.
// Call it only after a successful read of the whole family.
func (c *Counters) Sweep() {
	for k := range c.last {
		if _, ok := c.seen[k]; !ok {
			delete(c.last, k)
		}
	}
	clear(c.seen)
}

// Len returns the number of tracked keys.
func (c *Counters) Len() int {
	return len(c.last)
}
