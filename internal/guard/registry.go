package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Predicate answers "does this form have unsaved changes?".
//
// The predicate is owned by the registering form and closes over its
// tracker; the registry only holds the function value.
type Predicate func(ctx context.Context) (bool, error)

// Verdict is the outcome of evaluating the registry.
type Verdict struct {
	// Dirty is true when some predicate reported unsaved changes.
	Dirty bool

	// BlockingID is the first guard (in registration order) that reported
	// unsaved changes. Empty when Dirty is false.
	BlockingID string

	// Failures lists predicates that errored, panicked or timed out.
	Failures []*GuardError
}

type entry struct {
	id   string
	pred Predicate
	gen  uint64 // bumped on every (re-)registration
}

// Registry maps guard ids to predicates in registration order.
//
// INVARIANTS:
//   - ids are unique
//   - an overwrite keeps the entry's position; a registration after
//     Unregister appends at the end
//   - Evaluate never holds the lock while a predicate runs
type Registry struct {
	mu      sync.Mutex
	entries []entry
	gen     uint64

	timeout    time.Duration
	failClosed bool
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
// Honors WithLogger, WithPredicateTimeout and WithFailClosed.
func NewRegistry(opts ...Option) *Registry {
	s := newSettings(opts)
	return &Registry{
		timeout:    s.timeout,
		failClosed: s.failClosed,
		logger:     s.logger,
	}
}

// Register stores the predicate for id, replacing any previous one.
func (r *Registry) Register(id string, pred Predicate) error {
	if id == "" {
		return invalidRegistration(id, "guard id must not be empty")
	}
	if pred == nil {
		return invalidRegistration(id, "predicate must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	if i := r.indexOf(id); i >= 0 {
		r.entries[i].pred = pred
		r.entries[i].gen = r.gen
		return nil
	}
	r.entries = append(r.entries, entry{id: id, pred: pred, gen: r.gen})
	return nil
}

// Unregister removes id. Returns false if id was not registered.
// Safe to call repeatedly and for ids that never registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// Reset removes every entry and returns the removed ids in registration
// order.
func (r *Registry) Reset() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	r.entries = nil
	return ids
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of registered guards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(id) >= 0
}

// Evaluate runs the predicates sequentially in registration order and stops
// at the first one reporting unsaved changes.
//
// Ids unregistered after Evaluate started are skipped: their predicates may
// close over torn-down form state. An id re-registered meanwhile is asked
// through its live predicate, never the stale one. A context error stops
// the walk and is returned along with the failures seen so far.
func (r *Registry) Evaluate(ctx context.Context) (Verdict, error) {
	var v Verdict

	for _, snap := range r.snapshot() {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		e, ok := r.live(snap.id)
		if !ok {
			r.logger.Debug("guard removed during evaluation, skipping", "guard_id", snap.id)
			continue
		}
		if e.gen != snap.gen {
			r.logger.Debug("guard replaced during evaluation", "guard_id", e.id)
		}

		dirty, err := r.call(ctx, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		if err != nil {
			var ge *GuardError
			if !errors.As(err, &ge) {
				ge = &GuardError{Code: ErrCodePredicateFailed, Message: "predicate failed", GuardID: e.id, Err: err}
			}
			v.Failures = append(v.Failures, ge)
			r.logger.Warn("guard predicate failed",
				"guard_id", e.id,
				"code", ge.Code,
				"error", err,
				"fail_closed", r.failClosed,
			)
			dirty = r.failClosed
		}

		if dirty {
			v.Dirty = true
			v.BlockingID = e.id
			return v, nil
		}
	}
	return v, nil
}

// call runs one predicate, enforcing the timeout when configured.
// With a timeout the predicate runs on its own goroutine so a predicate
// that ignores its context cannot stall navigation; it is abandoned, not
// killed, and its late answer is discarded.
func (r *Registry) call(ctx context.Context, e entry) (bool, error) {
	if r.timeout <= 0 {
		return invoke(ctx, e)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		dirty bool
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		dirty, err := invoke(ctx, e)
		done <- outcome{dirty, err}
	}()

	select {
	case o := <-done:
		return o.dirty, o.err
	case <-ctx.Done():
		return false, &GuardError{
			Code:    ErrCodePredicateTimeout,
			Message: fmt.Sprintf("predicate did not answer within %s", r.timeout),
			GuardID: e.id,
			Err:     ctx.Err(),
		}
	}
}

// invoke calls the predicate and converts errors and panics to GuardError.
func invoke(ctx context.Context, e entry) (dirty bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			dirty = false
			err = &GuardError{
				Code:    ErrCodePredicatePanicked,
				Message: fmt.Sprintf("predicate panicked: %v", p),
				GuardID: e.id,
			}
		}
	}()

	dirty, err = e.pred(ctx)
	if err != nil {
		code := ErrCodePredicateFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodePredicateTimeout
		}
		return false, &GuardError{Code: code, Message: "predicate returned an error", GuardID: e.id, Err: err}
	}
	return dirty, nil
}

// snapshot copies the entries so predicates run without the lock.
func (r *Registry) snapshot() []entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// live returns the current registration for id.
func (r *Registry) live(id string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return entry{}, false
	}
	return r.entries[i], true
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(id string) int {
	for i, e := range r.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}
