// Package testutil holds deterministic stand-ins for time and sequencing.
package testutil

import "sync"

// DeterministicClock is a resettable guard.Sequencer.
//
// guard.Clock cannot be rewound; the scenario harness resets this clock
// between runs so a re-run scenario journals identical seq values.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last sequence number handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds to 0.
func (c *DeterministicClock) Reset() {
	c.ResetTo(0)
}

// ResetTo rewinds (or advances) so the next call to Next returns seq+1.
func (c *DeterministicClock) ResetTo(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}
