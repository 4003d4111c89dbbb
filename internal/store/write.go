package store

import (
	"context"
	"fmt"

	"github.com/roach88/navguard/internal/guard"
)

var _ guard.Journal = (*Store)(nil)

// Append inserts ev. seq must be unused: a duplicate seq means two clocks
// write to the same journal and is reported as an error.
func (s *Store) Append(ctx context.Context, ev guard.Event) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("append event: seq must be positive, got %d", ev.Seq)
	}
	if ev.Kind == "" {
		return fmt.Errorf("append event %d: kind must not be empty", ev.Seq)
	}

	detail, err := marshalDetail(ev.Detail)
	if err != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guard_events
		(seq, kind, guard_id, source_tag, navigation_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		string(ev.Kind),
		ev.GuardID,
		ev.SourceTag,
		ev.NavigationID,
		detail,
	)
	if err != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, err)
	}
	return nil
}
