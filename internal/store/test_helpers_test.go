package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/navguard/internal/guard"
)

// createTestStore opens a journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(seq int64, kind guard.EventKind, guardID, navID string) guard.Event {
	return guard.Event{
		Seq:          seq,
		Kind:         kind,
		GuardID:      guardID,
		SourceTag:    "menu",
		NavigationID: navID,
	}
}
