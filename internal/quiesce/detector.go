// Package quiesce decides when a freshly loaded form has stopped changing.
//
// Forms populate in cascades (record, then related lookups, then derived
// totals), so the first snapshot after "loading complete" is rarely final.
// A Detector waits, checks that the snapshot looks complete, then takes
// three samples and adopts the last one as the baseline if the last two
// agree. If they do not, one more sample is taken after a final wait and
// adopted regardless.
package quiesce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/snapshot"
)

// ErrAbandoned is returned when the snapshot never looked complete within
// the attempt ceiling. The form stays untracked.
var ErrAbandoned = errors.New("quiescence detection abandoned: snapshot never looked complete")

// Sampler returns the form's current snapshot.
type Sampler func() ir.IRObject

// CompleteFunc reports whether a snapshot looks fully loaded.
type CompleteFunc func(ir.IRObject) bool

// Result is a successful detection.
type Result struct {
	Baseline ir.IRObject
	Outcome  State // StateStable or StateForcedFinalize
	Attempts int   // completeness checks performed
	Samples  int   // snapshots taken, completeness checks included
}

// Option configures a Detector.
type Option func(*Detector)

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option {
	return func(d *Detector) { d.timing = t }
}

// WithSleeper replaces the real timer, e.g. with an instant sleeper in tests.
func WithSleeper(s Sleeper) Option {
	return func(d *Detector) {
		if s != nil {
			d.sleeper = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver receives every state transition, in order, on the Run
// goroutine.
func WithObserver(fn func(State)) Option {
	return func(d *Detector) { d.observe = fn }
}

// Detector runs one quiescence detection. A Detector is single use.
type Detector struct {
	sample   Sampler
	complete CompleteFunc
	timing   Timing
	sleeper  Sleeper
	logger   *slog.Logger
	observe  func(State)

	mu    sync.Mutex
	state State
	ran   bool
}

// New creates a detector. A nil complete treats every snapshot as complete.
func New(sample Sampler, complete CompleteFunc, opts ...Option) *Detector {
	if complete == nil {
		complete = func(ir.IRObject) bool { return true }
	}
	d := &Detector{
		sample:   sample,
		complete: complete,
		timing:   DefaultTiming(),
		sleeper:  TimerSleeper{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) transition(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if d.observe != nil {
		d.observe(s)
	}
}

// Run blocks until a baseline is chosen, the snapshot is judged never
// complete (ErrAbandoned), or ctx ends (ctx.Err()). No sample is taken
// after ctx ends.
func (d *Detector) Run(ctx context.Context) (Result, error) {
	d.mu.Lock()
	if d.ran {
		d.mu.Unlock()
		return Result{}, errors.New("detector already ran")
	}
	d.ran = true
	d.mu.Unlock()

	if d.sample == nil {
		return Result{}, errors.New("detector has no sampler")
	}
	if err := d.timing.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid timing: %w", err)
	}

	var res Result
	schedule := d.timing.settleSchedule()

	for {
		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			d.transition(StateAbandoned)
			d.logger.Warn("quiescence detection abandoned",
				"attempts", res.Attempts,
				"samples", res.Samples,
			)
			return res, ErrAbandoned
		}
		if err := d.wait(ctx, wait); err != nil {
			return res, err
		}

		s1 := d.take(&res)
		res.Attempts++
		if d.complete(s1) {
			break
		}
		d.logger.Debug("snapshot incomplete, waiting longer",
			"attempt", res.Attempts,
			"waited", wait,
		)
	}

	if err := d.wait(ctx, d.timing.Confirm); err != nil {
		return res, err
	}
	s2 := d.take(&res)

	if err := d.wait(ctx, d.timing.Recheck); err != nil {
		return res, err
	}
	s3 := d.take(&res)

	if snapshot.Equal(s2, s3) {
		res.Baseline = s3
		res.Outcome = StateStable
		d.transition(StateStable)
		d.logger.Debug("baseline stable", "attempts", res.Attempts, "samples", res.Samples)
		return res, nil
	}

	if err := d.wait(ctx, d.timing.Final); err != nil {
		return res, err
	}
	res.Baseline = d.take(&res)
	res.Outcome = StateForcedFinalize
	d.transition(StateForcedFinalize)
	d.logger.Info("baseline forced after unstable samples",
		"attempts", res.Attempts,
		"samples", res.Samples,
	)
	return res, nil
}

// wait sleeps for dur in the Waiting state.
func (d *Detector) wait(ctx context.Context, dur time.Duration) error {
	d.transition(StateWaiting)
	err := d.sleeper.Sleep(ctx, dur)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		d.transition(StateCancelled)
		d.logger.Debug("quiescence detection cancelled", "error", err)
	}
	return err
}

func (d *Detector) take(res *Result) ir.IRObject {
	s := d.sample()
	res.Samples++
	d.transition(StateSampled)
	return s
}
