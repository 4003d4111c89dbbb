// Package tracker tracks unsaved changes for one mounted form.
//
// A Tracker owns the form's baseline snapshot. The baseline is chosen by a
// quiescence detector once the form reports that loading is complete, and
// replaced only by MarkSaved. Once a baseline exists the tracker registers
// a guard predicate under its form id so global navigation asks it before
// leaving.
//
// Lifecycle:
//
//	Loading -> Stabilizing -> Clean <-> Dirty
//	                       \-> Untracked (detector gave up)
//	Clean|Dirty -> Saved -> Clean (MarkSaved)
//	any -> TornDown (Teardown)
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/profile"
	"github.com/roach88/navguard/internal/quiesce"
	"github.com/roach88/navguard/internal/snapshot"
)

var (
	// ErrTornDown is returned by operations on a torn-down tracker.
	ErrTornDown = errors.New("tracker torn down")

	// ErrAlreadyStarted is returned when stabilization is requested twice.
	ErrAlreadyStarted = errors.New("stabilization already started")
)

// Source supplies the form's current state.
type Source interface {
	Snapshot() ir.IRObject
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ir.IRObject

// Snapshot implements Source.
func (f SourceFunc) Snapshot() ir.IRObject { return f() }

// Guards is the part of the interceptor a tracker needs.
// Implemented by *guard.Interceptor.
type Guards interface {
	Register(id string, pred guard.Predicate) error
	Unregister(id string)
	Record(ctx context.Context, ev guard.Event)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTiming sets the detector timing.
func WithTiming(tm quiesce.Timing) Option {
	return func(t *Tracker) { t.timing = tm }
}

// WithSleeper sets the detector sleeper.
func WithSleeper(s quiesce.Sleeper) Option {
	return func(t *Tracker) { t.sleeper = s }
}

// WithComplete sets the "looks fully loaded" predicate.
func WithComplete(fn quiesce.CompleteFunc) Option {
	return func(t *Tracker) { t.complete = fn }
}

// WithProfile projects snapshots onto the profile's tracked fields and uses
// its completeness rules. existing is true when editing a stored record.
func WithProfile(p *profile.Profile, existing bool) Option {
	return func(t *Tracker) {
		if p == nil {
			return
		}
		t.project = p.Project
		t.complete = p.Complete(existing)
	}
}

// Tracker is the dirty-state tracker of one form instance.
// Safe for concurrent use.
type Tracker struct {
	id       string
	source   Source
	guards   Guards
	logger   *slog.Logger
	timing   quiesce.Timing
	sleeper  quiesce.Sleeper
	complete quiesce.CompleteFunc
	project  func(ir.IRObject) ir.IRObject

	mu       sync.Mutex
	state    State
	mounted  bool
	baseline ir.IRObject
	cancel   context.CancelFunc
	done     chan struct{}

	dialog bool
	held   guard.Action
}

// New creates a tracker in the Loading state. Nothing is registered until
// a baseline is adopted.
func New(id string, source Source, guards Guards, opts ...Option) *Tracker {
	t := &Tracker{
		id:      id,
		source:  source,
		guards:  guards,
		logger:  slog.Default(),
		timing:  quiesce.DefaultTiming(),
		state:   StateLoading,
		mounted: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("guard_id", id)
	return t
}

// ID returns the guard id.
func (t *Tracker) ID() string { return t.id }

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Baseline returns a copy of the baseline, or nil before adoption.
func (t *Tracker) Baseline() ir.IRObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline.Clone()
}

// LoadComplete starts stabilization in the background. Call it when the
// form's loading indicator turns off. Use Wait to block until it finishes.
func (t *Tracker) LoadComplete() {
	run, err := t.begin(context.Background())
	if err != nil {
		t.logger.Debug("load complete ignored", "error", err)
		return
	}
	go func() {
		defer close(run.done)
		err := t.run(run)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrTornDown) {
			t.logger.Warn("form left untracked", "error", err)
		}
	}()
}

// Stabilize runs stabilization on the calling goroutine.
// Returns quiesce.ErrAbandoned (wrapped) when no baseline could be chosen,
// ErrTornDown when the form was torn down before adoption.
func (t *Tracker) Stabilize(ctx context.Context) error {
	run, err := t.begin(ctx)
	if err != nil {
		return err
	}
	defer close(run.done)
	return t.run(run)
}

// Wait blocks until a started stabilization ends or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stabilization is one detector run.
type stabilization struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *Tracker) begin(parent context.Context) (stabilization, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mounted {
		return stabilization{}, ErrTornDown
	}
	if t.state != StateLoading {
		return stabilization{}, fmt.Errorf("%w (state %s)", ErrAlreadyStarted, t.state)
	}
	ctx, cancel := context.WithCancel(parent)
	s := stabilization{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	t.state = StateStabilizing
	t.cancel = cancel
	t.done = s.done
	return s, nil
}

// run executes the detector and applies its result. The caller closes
// s.done.
func (t *Tracker) run(s stabilization) error {
	defer s.cancel()

	d := quiesce.New(t.current, t.complete,
		quiesce.WithTiming(t.timing),
		quiesce.WithSleeper(t.sleeper),
		quiesce.WithLogger(t.logger),
	)
	res, err := d.Run(s.ctx)

	switch {
	case errors.Is(err, quiesce.ErrAbandoned):
		if !t.settle(StateUntracked) {
			return t.staleResult()
		}
		t.record(guard.EventBaselineAbandoned, ir.Obj(ir.O("attempts", ir.IRInt(res.Attempts))))
		return fmt.Errorf("stabilize %s: %w", t.id, err)
	case err != nil:
		if !t.rewind() {
			return t.staleResult()
		}
		return fmt.Errorf("stabilize %s: %w", t.id, err)
	}

	if !t.adopt(res.Baseline) {
		t.logger.Debug("detected baseline discarded")
		return t.staleResult()
	}
	t.logger.Debug("baseline adopted",
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"samples", res.Samples,
	)
	t.record(guard.EventBaselineAdopted, ir.Obj(
		ir.O("outcome", ir.IRString(res.Outcome.String())),
		ir.O("attempts", ir.IRInt(res.Attempts)),
		ir.O("digest", ir.IRString(digest(res.Baseline))),
	))
	if err := t.register(); err != nil {
		return err
	}

	// Edits made after the last sample.
	t.Refresh()
	return nil
}

// settle moves a stabilizing tracker to a terminal detection state.
func (t *Tracker) settle(s State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.mounted || t.state != StateStabilizing {
		return false
	}
	t.state = s
	return true
}

// adopt installs baseline if the tracker is still mounted and stabilizing.
// The tracker ends up Clean.
func (t *Tracker) adopt(baseline ir.IRObject) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mounted || t.state != StateStabilizing {
		return false
	}
	t.baseline = baseline.Clone()
	t.state = StateClean
	return true
}

// rewind returns an interrupted stabilization to Loading so LoadComplete
// may start it again.
func (t *Tracker) rewind() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mounted || t.state != StateStabilizing {
		return false
	}
	t.state = StateLoading
	t.cancel = nil
	return true
}

// register installs the guard predicate. A Teardown that ran before
// Register could not remove the guard, so mounted is checked again after
// registering and the guard is withdrawn if the form is gone.
func (t *Tracker) register() error {
	if err := t.guards.Register(t.id, t.Predicate()); err != nil {
		t.logger.Error("guard registration failed", "error", err)
		return fmt.Errorf("register guard %s: %w", t.id, err)
	}
	if !t.isMounted() {
		t.guards.Unregister(t.id)
		t.logger.Debug("guard withdrawn after teardown")
		return ErrTornDown
	}
	return nil
}

// staleResult reports why a finished detection was not applied: the form
// was torn down, or MarkSaved already set the baseline.
func (t *Tracker) staleResult() error {
	if !t.isMounted() {
		return ErrTornDown
	}
	return nil
}

func (t *Tracker) isMounted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mounted
}

// current samples the source, projected onto the tracked fields.
func (t *Tracker) current() ir.IRObject {
	raw := t.source.Snapshot()
	if t.project != nil {
		return t.project(raw)
	}
	return raw.Clone()
}

// tracked returns the baseline when the tracker compares snapshots.
func (t *Tracker) tracked() (ir.IRObject, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.mounted || t.baseline == nil {
		return nil, false
	}
	switch t.state {
	case StateClean, StateDirty, StateSaved:
		return t.baseline, true
	}
	return nil, false
}

// IsDirty reports whether the form differs from its baseline. Always false
// before a baseline is adopted and after teardown.
func (t *Tracker) IsDirty() bool {
	baseline, ok := t.tracked()
	if !ok {
		return false
	}
	return !snapshot.Equal(t.current(), baseline)
}

// Changes lists the differences from the baseline.
func (t *Tracker) Changes() ([]snapshot.Change, error) {
	baseline, ok := t.tracked()
	if !ok {
		return nil, nil
	}
	return snapshot.Changes(baseline, t.current())
}

// Predicate returns the guard predicate registered for this form.
func (t *Tracker) Predicate() guard.Predicate {
	return func(context.Context) (bool, error) {
		return t.IsDirty(), nil
	}
}

// Refresh recomputes Clean/Dirty after a form-state change and journals
// transitions. Returns the resulting state.
func (t *Tracker) Refresh() State {
	dirty := t.IsDirty()

	t.mu.Lock()
	prev := t.state
	if prev != StateClean && prev != StateDirty {
		t.mu.Unlock()
		return prev
	}
	next := StateClean
	if dirty {
		next = StateDirty
	}
	t.state = next
	t.mu.Unlock()

	if next == prev {
		return next
	}
	if next == StateDirty {
		var paths []string
		if changes, err := t.Changes(); err == nil {
			for _, c := range changes {
				paths = append(paths, c.Path)
			}
		}
		t.logger.Debug("form dirty", "changed", paths)
		t.record(guard.EventDirty, ir.Obj(ir.O("changed", ir.IRInt(len(paths)))))
	} else {
		t.logger.Debug("form clean")
		t.record(guard.EventClean, nil)
	}
	return next
}

// MarkSaved adopts the current snapshot as the new baseline after a
// successful save. A running detector is cancelled and not restarted.
// Returns ErrTornDown if the form was torn down before its guard could be
// registered.
func (t *Tracker) MarkSaved() error {
	snap := t.current()

	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return ErrTornDown
	}
	cancel := t.cancel
	t.cancel = nil
	wasTracked := t.baseline != nil
	t.baseline = snap
	t.state = StateSaved
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.logger.Debug("baseline replaced after save")
	t.record(guard.EventSaved, ir.Obj(ir.O("digest", ir.IRString(digest(snap)))))

	t.mu.Lock()
	if t.state == StateSaved {
		t.state = StateClean
	}
	t.mu.Unlock()

	if !wasTracked {
		return t.register()
	}
	return nil
}

// Teardown stops tracking: it cancels a running detector, unregisters the
// guard and discards the baseline. Safe to call repeatedly.
func (t *Tracker) Teardown() {
	if !t.stop(StateTornDown) {
		return
	}
	t.guards.Unregister(t.id)
	t.logger.Debug("tracker torn down")
	t.record(guard.EventTornDown, nil)
}

// stop ends tracking and leaves the tracker in s. Returns false if already
// torn down.
func (t *Tracker) stop(s State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mounted {
		return false
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mounted = s != StateTornDown
	t.state = s
	t.baseline = nil
	t.dialog = false
	t.held = nil
	return true
}

func (t *Tracker) record(kind guard.EventKind, detail ir.IRObject) {
	t.guards.Record(context.Background(), guard.Event{Kind: kind, GuardID: t.id, Detail: detail})
}

func digest(s ir.IRObject) string {
	d, err := snapshot.Digest(s)
	if err != nil {
		return ""
	}
	return d
}
