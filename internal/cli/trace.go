package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Guard      string // optional - events of one guard
	Navigation string // optional - events of one navigation attempt
	Kinds      []string
}

// TraceEvent is a single event in the trace timeline.
type TraceEvent struct {
	Seq          int64          `json:"seq"`
	Kind         string         `json:"kind"`
	GuardID      string         `json:"guard_id,omitempty"`
	SourceTag    string         `json:"source_tag,omitempty"`
	NavigationID string         `json:"navigation_id,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Guard      string       `json:"guard,omitempty"`
	Navigation string       `json:"navigation,omitempty"`
	Timeline   []TraceEvent `json:"timeline"`
	Stats      TraceStats   `json:"stats"`
}

// TraceStats summarizes the whole journal, independent of filters.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Shown       int            `json:"shown"`
	ByKind      map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the guard event journal",
		Long: `Show journaled guard events in sequence order.

The output includes:
- Timeline: events in seq order, optionally narrowed to one guard, one
  navigation attempt or a set of kinds
- Stats: event counts by kind across the whole journal

The database defaults to journal.path from the config file.

Examples:
  navguard trace --db ./journal.db
  navguard trace --db ./journal.db --guard invoice-form-42
  navguard trace --db ./journal.db --navigation nav-3 --format json
  navguard trace --kind blocked --kind confirmed`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default journal.path)")
	cmd.Flags().StringVar(&opts.Guard, "guard", "", "only events of this guard id")
	cmd.Flags().StringVar(&opts.Navigation, "navigation", "", "only events of this navigation id")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only events of these kinds")
	cmd.MarkFlagsMutuallyExclusive("guard", "navigation")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	path := opts.Database
	if path == "" {
		path = opts.Settings.Journal.Path
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no journal database: pass --db or set journal.path")
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var events []guard.Event
	switch {
	case opts.Guard != "":
		events, err = st.ReadEventsForGuard(ctx, opts.Guard)
	case opts.Navigation != "":
		events, err = st.ReadEventsForNavigation(ctx, opts.Navigation)
	default:
		events, err = st.ReadEvents(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	counts, err := st.CountByKind(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	timeline := buildTimeline(events, opts.Kinds)
	result := TraceResult{
		Guard:      opts.Guard,
		Navigation: opts.Navigation,
		Timeline:   timeline,
		Stats: TraceStats{
			Shown:  len(timeline),
			ByKind: make(map[string]int, len(counts)),
		},
	}
	for kind, n := range counts {
		result.Stats.ByKind[string(kind)] = n
		result.Stats.TotalEvents += n
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).
			JSON(CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTimeline converts journal events to timeline entries, keeping only
// the given kinds when any are named.
func buildTimeline(events []guard.Event, kinds []string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		if len(kinds) > 0 && !slices.Contains(kinds, string(ev.Kind)) {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:          ev.Seq,
			Kind:         string(ev.Kind),
			GuardID:      ev.GuardID,
			SourceTag:    ev.SourceTag,
			NavigationID: ev.NavigationID,
			Detail:       detailMap(ev.Detail),
		})
	}
	return timeline
}

func detailMap(detail ir.IRObject) map[string]any {
	if len(detail) == 0 {
		return nil
	}
	m, _ := ir.ToAny(detail).(map[string]any)
	return m
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	switch {
	case result.Guard != "":
		fmt.Fprintf(w, "Trace for Guard: %s\n", result.Guard)
	case result.Navigation != "":
		fmt.Fprintf(w, "Trace for Navigation: %s\n", result.Navigation)
	default:
		fmt.Fprintln(w, "Trace for Journal")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Shown:        %d\n", result.Stats.Shown)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for kind := range result.Stats.ByKind {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-20s %d\n", kind+":", result.Stats.ByKind[kind])
	}
	return nil
}

func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "  [%d] %s", ev.Seq, strings.ToUpper(ev.Kind))
	if ev.GuardID != "" {
		fmt.Fprintf(&b, " guard=%s", ev.GuardID)
	}
	if ev.NavigationID != "" {
		fmt.Fprintf(&b, " nav=%s", ev.NavigationID)
	}
	if ev.SourceTag != "" {
		fmt.Fprintf(&b, " source=%s", ev.SourceTag)
	}
	fmt.Fprintln(w, b.String())
	if verbose && len(ev.Detail) > 0 {
		fmt.Fprintf(w, "       Detail: %s\n", formatArgs(ev.Detail))
	}
}

// formatArgs formats a map with sorted keys for deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}
