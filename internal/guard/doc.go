// Package guard implements the navigation guard registry and interceptor.
//
// Editing forms register predicates answering "is there unsaved work?".
// Every navigation attempt (route change, browser back, logout, menu click)
// goes through Interceptor.Intercept, which asks the registered predicates
// before running the navigation.
//
// ARCHITECTURE:
//
// Registry:
// An ordered table of guard id -> predicate. Evaluate walks the entries in
// registration order and stops at the first predicate reporting unsaved
// changes, so the blocking guard is deterministic for a fixed registration
// order. Predicates run one at a time, never concurrently.
//
// Interceptor:
// Owns the registry, the single PendingNavigation slot and the blocked
// channel. A clean verdict runs the navigation on the caller's goroutine; a
// dirty verdict parks it in the pending slot and publishes a Blocked
// notification to the mounted confirmation flow, which later calls
// ConfirmPending or CancelPending.
//
// Journal:
// Every decision is stamped with a logical seq from Clock and appended to an
// optional Journal (internal/store implements it with SQLite).
//
// LOCKING:
// Registry and pending slot are guarded by their own mutexes. Predicates,
// navigation actions and subscriber handlers always run with no lock held,
// so they may call back into the package (unregister during evaluation,
// confirm from inside a Blocked handler).
//
// FAILURE POLICY:
// A predicate that errors, panics or times out is logged and journaled, then
// counted as clean (fail-open) unless WithFailClosed is set. One broken form
// must not freeze navigation for the whole application.
//
// DOUBLE BLOCK:
// A navigation blocked while another is pending replaces it. The older
// action is dropped without running and a "superseded" event is journaled.
package guard
