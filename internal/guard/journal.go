package guard

import (
	"context"

	"github.com/roach88/navguard/internal/ir"
)

// EventKind names a journaled guard or navigation event.
type EventKind string

const (
	EventRegistered      EventKind = "registered"
	EventUnregistered    EventKind = "unregistered"
	EventReset           EventKind = "reset"
	EventProceeded       EventKind = "proceeded"
	EventBlocked         EventKind = "blocked"
	EventConfirmed       EventKind = "confirmed"
	EventCancelled       EventKind = "cancelled"
	EventSuperseded      EventKind = "superseded"
	EventPredicateFailed EventKind = "predicate_failed"

	// Tracker lifecycle events, journaled through Interceptor.Record.
	EventBaselineAdopted   EventKind = "baseline_adopted"
	EventBaselineAbandoned EventKind = "baseline_abandoned"
	EventDirty             EventKind = "dirty"
	EventClean             EventKind = "clean"
	EventSaved             EventKind = "saved"
	EventDiscarded         EventKind = "discarded"
	EventTornDown          EventKind = "torn_down"
)

// Event is one journal record.
type Event struct {
	Seq          int64       `json:"seq"`
	Kind         EventKind   `json:"kind"`
	GuardID      string      `json:"guard_id,omitempty"`
	SourceTag    string      `json:"source_tag,omitempty"`
	NavigationID string      `json:"navigation_id,omitempty"`
	Detail       ir.IRObject `json:"detail,omitempty"`
}

// Journal receives every event in seq order.
// Implemented by store.Store; a nil Journal disables journaling.
type Journal interface {
	Append(ctx context.Context, ev Event) error
}
