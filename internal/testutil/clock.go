package testutil

import "sync/atomic"

// DeterministicClock numbers scenario trace events 1, 2, 3, ...
//
// It can be reset so the same scenario replays with identical sequence
// numbers.
//
// Thread-safety: DeterministicClock is safe for concurrent use.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new sequence number.
func (c *DeterministicClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out, 0 before the first
// Next.
func (c *DeterministicClock) Current() int64 {
	return c.seq.Load()
}

// Reset rewinds the clock to 0.
func (c *DeterministicClock) Reset() {
	c.seq.Store(0)
}
