package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/store"
)

type traceResponse struct {
	Status string      `json:"status"`
	Data   TraceResult `json:"data"`
}

// seedJournal writes a superseded navigation followed by a confirmed one.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	events := []guard.Event{
		{Seq: 1, Kind: guard.EventRegistered, GuardID: "invoice-form-7"},
		{Seq: 2, Kind: guard.EventBlocked, GuardID: "invoice-form-7", SourceTag: "menu", NavigationID: "nav-1"},
		{Seq: 3, Kind: guard.EventSuperseded, SourceTag: "menu", NavigationID: "nav-1",
			Detail: ir.Obj(ir.O("superseded_by", ir.IRString("nav-2")))},
		{Seq: 4, Kind: guard.EventBlocked, GuardID: "invoice-form-7", SourceTag: "back", NavigationID: "nav-2"},
		{Seq: 5, Kind: guard.EventConfirmed, GuardID: "invoice-form-7", SourceTag: "back", NavigationID: "nav-2"},
	}
	for _, ev := range events {
		require.NoError(t, st.Append(context.Background(), ev))
	}
	return path
}

func TestTraceCommand_Text(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Journal")
	assert.Contains(t, out, "  [2] BLOCKED guard=invoice-form-7 nav=nav-1 source=menu\n")
	assert.Contains(t, out, "  [3] SUPERSEDED nav=nav-1 source=menu\n")
	assert.Contains(t, out, "  Total Events: 5")
	assert.Contains(t, out, fmt.Sprintf("  %-20s %d\n", "blocked:", 2))
	assert.NotContains(t, out, "Detail:", "detail is verbose-only")

	out, err = execute(t, "trace", "--db", db, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "       Detail: {superseded_by=nav-2}")
}

func TestTraceCommand_Filters(t *testing.T) {
	db := seedJournal(t)

	tests := []struct {
		name string
		args []string
		want []int64
	}{
		{"navigation", []string{"--navigation", "nav-1"}, []int64{2, 3}},
		{"guard", []string{"--guard", "invoice-form-7"}, []int64{1, 2, 4, 5}},
		{"kind", []string{"--kind", "blocked,confirmed"}, []int64{2, 4, 5}},
		{"guard and kind", []string{"--guard", "invoice-form-7", "--kind", "confirmed"}, []int64{5}},
		{"unknown guard", []string{"--guard", "client-form-1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--format", "json", "trace", "--db", db}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			var resp traceResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			var seqs []int64
			for _, ev := range resp.Data.Timeline {
				seqs = append(seqs, ev.Seq)
			}
			assert.Equal(t, tt.want, seqs)
			assert.Equal(t, len(tt.want), resp.Data.Stats.Shown)
			assert.Equal(t, 5, resp.Data.Stats.TotalEvents, "stats cover the whole journal")
		})
	}
}

func TestTraceCommand_JSONDetail(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--kind", "superseded")
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, map[string]any{"superseded_by": "nav-2"}, resp.Data.Timeline[0].Detail)
}

func TestTraceCommand_DatabaseFromConfig(t *testing.T) {
	db := seedJournal(t)
	cfg := writeFile(t, filepath.Join(t.TempDir(), "navguard.yaml"), "journal:\n  path: "+db+"\n")

	out, err := execute(t, "-c", cfg, "trace", "--navigation", "nav-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Navigation: nav-2")
	assert.Contains(t, out, "[5] CONFIRMED")
}

func TestTraceCommand_Errors(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		t.Setenv("NAVGUARD_JOURNAL_PATH", "")
		_, err := execute(t, "trace")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "pass --db or set journal.path")
	})

	t.Run("guard and navigation together", func(t *testing.T) {
		_, err := execute(t, "trace", "--db", seedJournal(t), "--guard", "a", "--navigation", "b")
		require.Error(t, err)
	})

	t.Run("empty journal", func(t *testing.T) {
		out, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "fresh.db"))
		require.NoError(t, err)
		assert.Contains(t, out, "(no events)")
	})
}
