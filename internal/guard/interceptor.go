package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/navguard/internal/ir"
)

// Action performs a navigation (route change, logout, history back).
type Action func()

// PendingNavigation is a navigation held back by a dirty guard.
type PendingNavigation struct {
	NavigationID    string
	SourceTag       string
	BlockingGuardID string
}

type pending struct {
	PendingNavigation
	action Action
}

// Interceptor is the entry point every navigation must go through.
//
// It owns the guard registry, the single pending-navigation slot and the
// blocked channel; no other code mutates them directly.
//
// Guarantee: an intercepted action runs at most once, either immediately
// from Intercept or later from exactly one of ConfirmPending / Blocked.Resolve.
type Interceptor struct {
	registry *Registry
	notifier *Notifier
	clock    Sequencer
	ids      IDGenerator
	journal  Journal
	logger   *slog.Logger

	mu      sync.Mutex
	pending *pending
}

// ErrNilAction is returned by Intercept when no action is given.
var ErrNilAction = errors.New("navigation action must not be nil")

// New creates an Interceptor with an empty registry.
func New(opts ...Option) *Interceptor {
	s := newSettings(opts)
	return &Interceptor{
		registry: NewRegistry(opts...),
		notifier: NewNotifier(s.logger),
		clock:    s.clock,
		ids:      s.ids,
		journal:  s.journal,
		logger:   s.logger,
	}
}

// Registry exposes the registry for read-only introspection (IDs, Has, Len).
// Mutations must go through the Interceptor so they are journaled.
func (in *Interceptor) Registry() *Registry {
	return in.registry
}

// Register adds or replaces the guard for id.
func (in *Interceptor) Register(id string, pred Predicate) error {
	if err := in.registry.Register(id, pred); err != nil {
		return err
	}
	in.logger.Debug("guard registered", "guard_id", id)
	in.Record(context.Background(), Event{Kind: EventRegistered, GuardID: id})
	return nil
}

// Unregister removes the guard for id. No-op if absent.
func (in *Interceptor) Unregister(id string) {
	if !in.registry.Unregister(id) {
		return
	}
	in.logger.Debug("guard unregistered", "guard_id", id)
	in.Record(context.Background(), Event{Kind: EventUnregistered, GuardID: id})
}

// Reset removes every guard, e.g. after a confirmed logout.
func (in *Interceptor) Reset() {
	ids := in.registry.Reset()
	if len(ids) == 0 {
		return
	}
	vals := make(ir.IRArray, len(ids))
	for i, id := range ids {
		vals[i] = ir.IRString(id)
	}
	in.logger.Info("guard registry reset", "removed", len(ids))
	in.Record(context.Background(), Event{Kind: EventReset, Detail: ir.Obj(ir.O("removed", vals))})
}

// Subscribe registers a blocked-navigation handler. See Notifier.
func (in *Interceptor) Subscribe(name string, handler BlockedHandler) func() {
	return in.notifier.Subscribe(name, handler)
}

// Subscribers returns the number of blocked-navigation subscribers.
func (in *Interceptor) Subscribers() int {
	return in.notifier.Len()
}

// Intercept asks every guard before running action.
//
// Clean: action runs on the caller's goroutine before Intercept returns
// true. Dirty: the navigation becomes the pending one, a Blocked
// notification is published and Intercept returns false. If ctx ends while
// guards are evaluated, nothing runs, nothing is stored and the context
// error is returned.
func (in *Interceptor) Intercept(ctx context.Context, action Action, sourceTag string) (bool, error) {
	if action == nil {
		return false, ErrNilAction
	}

	navID := in.ids.Generate()
	verdict, err := in.registry.Evaluate(ctx)
	for _, f := range verdict.Failures {
		in.Record(ctx, Event{
			Kind:         EventPredicateFailed,
			GuardID:      f.GuardID,
			SourceTag:    sourceTag,
			NavigationID: navID,
			Detail:       ir.Obj(ir.O("code", ir.IRString(f.Code))),
		})
	}
	if err != nil {
		in.logger.Warn("navigation abandoned: guard evaluation interrupted",
			"navigation_id", navID,
			"source", sourceTag,
			"error", err,
		)
		return false, fmt.Errorf("evaluate guards: %w", err)
	}

	if !verdict.Dirty {
		in.logger.Debug("navigation proceeding", "navigation_id", navID, "source", sourceTag)
		in.Record(ctx, Event{Kind: EventProceeded, SourceTag: sourceTag, NavigationID: navID})
		action()
		return true, nil
	}

	p := &pending{
		PendingNavigation: PendingNavigation{
			NavigationID:    navID,
			SourceTag:       sourceTag,
			BlockingGuardID: verdict.BlockingID,
		},
		action: action,
	}

	in.mu.Lock()
	prev := in.pending
	in.pending = p
	in.mu.Unlock()

	if prev != nil {
		in.logger.Warn("pending navigation superseded",
			"navigation_id", prev.NavigationID,
			"source", prev.SourceTag,
			"superseded_by", navID,
		)
		in.Record(ctx, Event{
			Kind:         EventSuperseded,
			GuardID:      prev.BlockingGuardID,
			SourceTag:    prev.SourceTag,
			NavigationID: prev.NavigationID,
			Detail:       ir.Obj(ir.O("superseded_by", ir.IRString(navID))),
		})
	}

	in.logger.Info("navigation blocked",
		"navigation_id", navID,
		"source", sourceTag,
		"guard_id", verdict.BlockingID,
	)
	in.Record(ctx, Event{
		Kind:         EventBlocked,
		GuardID:      verdict.BlockingID,
		SourceTag:    sourceTag,
		NavigationID: navID,
	})

	in.notifier.Publish(Blocked{
		NavigationID:    navID,
		SourceTag:       sourceTag,
		BlockingGuardID: verdict.BlockingID,
		Resolve:         func() { in.resolve(p) },
	})
	return false, nil
}

// ConfirmPending runs the pending navigation and clears the slot.
// Returns false when nothing was pending.
func (in *Interceptor) ConfirmPending() bool {
	in.mu.Lock()
	p := in.pending
	in.pending = nil
	in.mu.Unlock()

	if p == nil {
		return false
	}
	in.run(p)
	return true
}

// CancelPending clears the pending navigation without running it.
// Returns false when nothing was pending.
func (in *Interceptor) CancelPending() bool {
	in.mu.Lock()
	p := in.pending
	in.pending = nil
	in.mu.Unlock()

	if p == nil {
		return false
	}
	in.logger.Info("pending navigation cancelled", "navigation_id", p.NavigationID)
	in.Record(context.Background(), Event{
		Kind:         EventCancelled,
		GuardID:      p.BlockingGuardID,
		SourceTag:    p.SourceTag,
		NavigationID: p.NavigationID,
	})
	return true
}

// Pending returns the pending navigation, if any.
func (in *Interceptor) Pending() (PendingNavigation, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.pending == nil {
		return PendingNavigation{}, false
	}
	return in.pending.PendingNavigation, true
}

// resolve runs p only if it is still the pending navigation.
func (in *Interceptor) resolve(p *pending) {
	in.mu.Lock()
	if in.pending != p {
		in.mu.Unlock()
		in.logger.Debug("navigation already resolved", "navigation_id", p.NavigationID)
		return
	}
	in.pending = nil
	in.mu.Unlock()

	in.run(p)
}

// run executes a confirmed navigation. The slot is already cleared, so an
// action that navigates again starts from an empty slot.
func (in *Interceptor) run(p *pending) {
	in.logger.Info("pending navigation confirmed", "navigation_id", p.NavigationID)
	in.Record(context.Background(), Event{
		Kind:         EventConfirmed,
		GuardID:      p.BlockingGuardID,
		SourceTag:    p.SourceTag,
		NavigationID: p.NavigationID,
	})
	p.action()
}

// Record stamps ev with the next seq and appends it to the journal.
// Journal failures are logged and do not affect navigation.
func (in *Interceptor) Record(ctx context.Context, ev Event) {
	ev.Seq = in.clock.Next()
	if in.journal == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := in.journal.Append(ctx, ev); err != nil {
		in.logger.Error("journal append failed",
			"seq", ev.Seq,
			"kind", ev.Kind,
			"error", err,
		)
	}
}
