package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
)

// TraceSnapshot is the golden form of a scenario trace. Event details are
// left out: they carry snapshot digests that change with any fixture edit.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Trace        []guard.Event `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain values for
// ir.MarshalCanonical. Empty fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		eventMap := map[string]any{
			"seq":  ev.Seq,
			"kind": string(ev.Kind),
		}
		if ev.GuardID != "" {
			eventMap["guard_id"] = ev.GuardID
		}
		if ev.SourceTag != "" {
			eventMap["source_tag"] = ev.SourceTag
		}
		if ev.NavigationID != "" {
			eventMap["navigation_id"] = ev.NavigationID
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a trace as canonical JSON, the golden file format.
func MarshalTrace(scenarioName string, trace []guard.Event) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the golden file
// named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
