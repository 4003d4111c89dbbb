package guard

import "sync/atomic"

// Sequencer hands out journal sequence numbers.
// Implemented by Clock and by testutil.DeterministicClock.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock for journal ordering.
//
// Every journaled event is stamped with a strictly increasing seq. Wall
// clock time is never used for ordering, so a replayed scenario produces the
// same journal.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to resume numbering on a reopened journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
