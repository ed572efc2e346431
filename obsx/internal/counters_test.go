package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersDelta(t *testing.T) {
	tests := []struct {
		name      string
		readings  []uint64
		wantDelta []uint64
		wantReset []bool
	}{
		{"baseline then growth", []uint64{1000, 1500, 1600}, []uint64{0, 500, 100}, []bool{false, false, false}},
		{"reset clamps to zero", []uint64{1000, 1500, 1200, 1300}, []uint64{0, 500, 0, 100}, []bool{false, false, true, false}},
		{"flat", []uint64{7, 7}, []uint64{0, 0}, []bool{false, false}},
		{"wrap looks like reset", []uint64{1<<32 - 10, 5}, []uint64{0, 0}, []bool{false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCounters()
			for i, r := range tt.readings {
				d, reset := c.Delta("eth0/receive", r)
				assert.Equal(t, tt.wantDelta[i], d, "reading %d", i)
				assert.Equal(t, tt.wantReset[i], reset, "reading %d", i)
			}
		})
	}
}

func TestCountersSweep(t *testing.T) {
	c := NewCounters()
	c.Delta("sda/read", 100)
	c.Delta("sdb/read", 100)
	c.Sweep()
	assert.Equal(t, 2, c.Len())

	// sdb disappears.
	c.Delta("sda/read", 150)
	c.Sweep()
	assert.Equal(t, 1, c.Len())

	// sdb reappears: new baseline, no delta carried over.
	d, reset := c.Delta("sdb/read", 900)
	assert.Equal(t, uint64(0), d)
	assert.False(t, reset)
}
