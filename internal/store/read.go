package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/navguard/internal/guard"
)

const selectEvents = `
	SELECT seq, kind, guard_id, source_tag, navigation_id, detail
	FROM guard_events
`

// ReadEvents returns every event ordered by seq.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadEvents(ctx context.Context) ([]guard.Event, error) {
	return s.queryEvents(ctx, selectEvents+` ORDER BY seq ASC`)
}

// ReadEventsSince returns the events with seq above after, ordered by seq.
func (s *Store) ReadEventsSince(ctx context.Context, after int64) ([]guard.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE seq > ? ORDER BY seq ASC`, after)
}

// ReadEventsForGuard returns the events of one guard ordered by seq.
func (s *Store) ReadEventsForGuard(ctx context.Context, guardID string) ([]guard.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE guard_id = ? ORDER BY seq ASC`, guardID)
}

// ReadEventsForNavigation returns the events of one navigation ordered by seq.
func (s *Store) ReadEventsForNavigation(ctx context.Context, navigationID string) ([]guard.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE navigation_id = ? ORDER BY seq ASC`, navigationID)
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
// Pass it to guard.NewClockAt when appending to a reopened journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM guard_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

// CountByKind returns how many events of each kind were journaled.
func (s *Store) CountByKind(ctx context.Context) (map[guard.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM guard_events GROUP BY kind ORDER BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[guard.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[guard.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]guard.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []guard.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (guard.Event, error) {
	var (
		ev     guard.Event
		kind   string
		detail string
	)
	if err := rows.Scan(&ev.Seq, &kind, &ev.GuardID, &ev.SourceTag, &ev.NavigationID, &detail); err != nil {
		return guard.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = guard.EventKind(kind)

	d, err := unmarshalDetail(detail)
	if err != nil {
		return guard.Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	ev.Detail = d
	return ev, nil
}
