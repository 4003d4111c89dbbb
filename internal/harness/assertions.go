package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []guard.Event // Journal for debugging context, nil for state assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Kind)
			if ev.GuardID != "" {
				fmt.Fprintf(&buf, " guard=%s", ev.GuardID)
			}
			if ev.NavigationID != "" {
				fmt.Fprintf(&buf, " nav=%s", ev.NavigationID)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// matches reports whether ev is selected by the assertion's kind, guard
// and source filters.
func matches(ev guard.Event, a Assertion) bool {
	if string(ev.Kind) != a.Kind {
		return false
	}
	if a.Guard != "" && ev.GuardID != a.Guard {
		return false
	}
	if a.Source != "" && ev.SourceTag != a.Source {
		return false
	}
	return true
}

func describe(a Assertion) string {
	desc := a.Kind
	if a.Guard != "" {
		desc += " guard=" + a.Guard
	}
	if a.Source != "" {
		desc += " source=" + a.Source
	}
	return desc
}

// assertTraceContains checks that some event matches the filters and
// carries the expected detail fields (subset match).
func assertTraceContains(trace []guard.Event, a Assertion) error {
	want, err := ir.ObjectFromMap(a.Detail)
	if err != nil {
		return fmt.Errorf("trace_contains detail: %w", err)
	}
	for _, ev := range trace {
		if matches(ev, a) && subsetOf(want, ev.Detail) {
			return nil
		}
	}
	expected := describe(a)
	if len(want) > 0 {
		expected += fmt.Sprintf(" with detail %v", a.Detail)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the kinds appear in
// the given order. Other events may come in between.
func assertTraceOrder(trace []guard.Event, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		kind := string(ev.Kind)
		if positions[kind] == 0 && slices.Contains(a.Kinds, kind) {
			positions[kind] = i + 1
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []guard.Event, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertRoute(result *Result, a Assertion) error {
	if result.Route != a.Route {
		return &AssertionError{Type: AssertRoute, Expected: a.Route, Actual: result.Route}
	}
	return nil
}

func assertGuards(result *Result, a Assertion) error {
	want := a.Guards
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(result.Guards, want) {
		return &AssertionError{
			Type:     AssertGuards,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", result.Guards),
		}
	}
	return nil
}

func assertActionCount(result *Result, a Assertion) error {
	if result.Actions != a.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d navigation actions", a.Count),
			Actual:   fmt.Sprintf("%d navigation actions", result.Actions),
		}
	}
	return nil
}

func assertDirty(h *Harness, a Assertion) error {
	f, err := h.mountedForm(a.Form)
	if err != nil {
		return &AssertionError{Type: AssertDirty, Expected: "mounted form " + a.Form, Actual: err.Error()}
	}
	if got := f.tracker.IsDirty(); got != *a.Value {
		return &AssertionError{
			Type:     AssertDirty,
			Expected: fmt.Sprintf("%s dirty = %v", a.Form, *a.Value),
			Actual:   fmt.Sprintf("%s dirty = %v", a.Form, got),
		}
	}
	return nil
}

func assertBaseline(h *Harness, a Assertion) error {
	f, err := h.mountedForm(a.Form)
	if err != nil {
		return &AssertionError{Type: AssertBaseline, Expected: "mounted form " + a.Form, Actual: err.Error()}
	}
	want, err := ir.ObjectFromMap(a.Fields)
	if err != nil {
		return fmt.Errorf("baseline fields: %w", err)
	}
	baseline := f.tracker.Baseline()
	if baseline == nil {
		return &AssertionError{Type: AssertBaseline, Expected: fmt.Sprintf("%v", a.Fields), Actual: "no baseline"}
	}
	if !subsetOf(want, baseline) {
		return &AssertionError{
			Type:     AssertBaseline,
			Expected: fmt.Sprintf("%v", a.Fields),
			Actual:   fmt.Sprintf("%v", ir.ToAny(baseline)),
		}
	}
	return nil
}

// subsetOf reports whether every field of want appears in got with a
// canonically equal value.
func subsetOf(want, got ir.IRObject) bool {
	for key, w := range want {
		g, ok := got[key]
		if !ok {
			return false
		}
		wb, err := ir.MarshalCanonical(w)
		if err != nil {
			return false
		}
		gb, err := ir.MarshalCanonical(g)
		if err != nil || !bytes.Equal(wb, gb) {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result and the
// harness's final form state. Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, h *Harness) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertRoute:
			err = assertRoute(result, a)
		case AssertGuards:
			err = assertGuards(result, a)
		case AssertActionCount:
			err = assertActionCount(result, a)
		case AssertDirty, AssertBaseline:
			if h == nil {
				err = fmt.Errorf("assertion[%d]: %s requires form state", i, a.Type)
			} else if a.Type == AssertDirty {
				err = assertDirty(h, a)
			} else {
				err = assertBaseline(h, a)
			}
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
