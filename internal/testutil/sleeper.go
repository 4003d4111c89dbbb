package testutil

import (
	"context"
	"sync"
	"time"
)

// InstantSleeper is a quiesce.Sleeper that returns immediately and records
// every requested duration.
//
// OnSleep, if set, runs after each recorded wait with the 1-based wait
// number. Tests use it to apply a form's loading cascade "while" the
// detector waits.
type InstantSleeper struct {
	OnSleep func(n int, d time.Duration)

	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns ctx.Err().
func (s *InstantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	hook := s.OnSleep
	s.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Waits returns the recorded durations in order.
func (s *InstantSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// Total returns the simulated elapsed time.
func (s *InstantSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.waits {
		total += d
	}
	return total
}
