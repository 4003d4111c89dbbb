package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/navguard/internal/quiesce"
)

// Scenario is one simulated editing session: forms that load, get edited
// and saved, and navigation attempts that the guards allow or block.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profiles lists CUE profile files. Paths are relative to the
	// scenario file when loaded with LoadScenario.
	Profiles []string `yaml:"profiles,omitempty"`

	// Timing overrides detector intervals. Unset fields keep the run's base
	// timing (see WithTiming). Waits are simulated, so only the retry
	// ceiling changes outcomes.
	Timing TimingOverride `yaml:"timing,omitempty"`

	// Forms declares the form instances steps refer to.
	Forms []Form `yaml:"forms"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the journal.
	Assertions []Assertion `yaml:"assertions"`
}

// TimingOverride holds the detector intervals a scenario sets explicitly.
type TimingOverride struct {
	Settle      *time.Duration `yaml:"settle,omitempty"`
	Multiplier  *float64       `yaml:"multiplier,omitempty"`
	MaxSettle   *time.Duration `yaml:"max_settle,omitempty"`
	MaxAttempts *int           `yaml:"max_attempts,omitempty"`
	Confirm     *time.Duration `yaml:"confirm,omitempty"`
	Recheck     *time.Duration `yaml:"recheck,omitempty"`
	Final       *time.Duration `yaml:"final,omitempty"`
}

// Apply returns base with every set field replaced.
func (o TimingOverride) Apply(base quiesce.Timing) quiesce.Timing {
	t := base
	setDuration(&t.Settle, o.Settle)
	if o.Multiplier != nil {
		t.Multiplier = *o.Multiplier
	}
	setDuration(&t.MaxSettle, o.MaxSettle)
	if o.MaxAttempts != nil {
		t.MaxAttempts = *o.MaxAttempts
	}
	setDuration(&t.Confirm, o.Confirm)
	setDuration(&t.Recheck, o.Recheck)
	setDuration(&t.Final, o.Final)
	return t
}

// validate checks the fields that are set. Checks that need the base
// timing run when the scenario is executed.
func (o TimingOverride) validate() error {
	switch {
	case o.Settle != nil && *o.Settle <= 0:
		return fmt.Errorf("settle must be positive")
	case o.Multiplier != nil && *o.Multiplier < 1:
		return fmt.Errorf("multiplier must be >= 1, got %v", *o.Multiplier)
	case o.MaxAttempts != nil && *o.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be >= 1, got %d", *o.MaxAttempts)
	case o.Settle != nil && o.MaxSettle != nil && *o.MaxSettle < *o.Settle:
		return fmt.Errorf("max_settle (%s) must not be below settle (%s)", *o.MaxSettle, *o.Settle)
	}
	for _, d := range []*time.Duration{o.Confirm, o.Recheck, o.Final} {
		if d != nil && *d < 0 {
			return fmt.Errorf("confirm, recheck and final must not be negative")
		}
	}
	return nil
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

// Form is a simulated form instance.
type Form struct {
	// ID is the guard id, e.g. "invoice-form-7".
	ID string `yaml:"id"`

	// Profile names a profile from Profiles. Empty tracks every field and
	// treats every snapshot as complete.
	Profile string `yaml:"profile,omitempty"`

	// Existing is true when editing a stored record.
	Existing bool `yaml:"existing,omitempty"`

	// Data is the form state at mount time.
	Data map[string]any `yaml:"data"`

	// Cascade holds partial updates that arrive while the form settles,
	// one per detector wait (related entities, recomputed totals).
	Cascade []map[string]any `yaml:"cascade,omitempty"`
}

// Step is one user or application action. Exactly one of the op fields
// must be set; its value names the form, or the route for navigate.
type Step struct {
	Mount   string `yaml:"mount,omitempty"`
	Load    string `yaml:"load,omitempty"`
	Edit    string `yaml:"edit,omitempty"`
	Save    string `yaml:"save,omitempty"`
	Unmount string `yaml:"unmount,omitempty"`

	// Navigate is the target route of a global navigation.
	Navigate string `yaml:"navigate,omitempty"`

	// Leave requests the form's own close; To is the route it leads to.
	Leave string `yaml:"leave,omitempty"`

	// Confirm answers the global dialog: discard or stay.
	Confirm string `yaml:"confirm,omitempty"`

	// Local answers a form's own dialog: discard or stay. Form names it.
	Local string `yaml:"local,omitempty"`

	Form   string         `yaml:"form,omitempty"`
	Set    map[string]any `yaml:"set,omitempty"`
	Source string         `yaml:"source,omitempty"`
	To     string         `yaml:"to,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpMount    = "mount"
	OpLoad     = "load"
	OpEdit     = "edit"
	OpSave     = "save"
	OpNavigate = "navigate"
	OpConfirm  = "confirm"
	OpLeave    = "leave"
	OpLocal    = "local"
	OpUnmount  = "unmount"
)

// Dialog answers.
const (
	ChoiceDiscard = "discard"
	ChoiceStay    = "stay"
)

// Op returns the step's operation and its argument.
func (s Step) Op() (op, arg string) {
	var found []string
	var val string
	for _, c := range []struct{ op, v string }{
		{OpMount, s.Mount},
		{OpLoad, s.Load},
		{OpEdit, s.Edit},
		{OpSave, s.Save},
		{OpNavigate, s.Navigate},
		{OpConfirm, s.Confirm},
		{OpLeave, s.Leave},
		{OpLocal, s.Local},
		{OpUnmount, s.Unmount},
	} {
		if c.v != "" {
			found = append(found, c.op)
			val = c.v
		}
	}
	if len(found) != 1 {
		return "", ""
	}
	return found[0], val
}

// Expect checks state right after a step. Unset fields are not checked.
type Expect struct {
	// Proceeded is the result of navigate or leave.
	Proceeded *bool `yaml:"proceeded,omitempty"`

	// State is the tracker state of the step's form, e.g. "dirty".
	State string `yaml:"state,omitempty"`

	// Dirty is IsDirty of the step's form.
	Dirty *bool `yaml:"dirty,omitempty"`

	// Dialog is the visibility of the global confirmation dialog, or of
	// the form's own dialog for leave and local steps.
	Dialog *bool `yaml:"dialog,omitempty"`

	// Route is the current route.
	Route string `yaml:"route,omitempty"`
}

// Assertion validates the final state or the journal.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Route is the expected final route (route).
	Route string `yaml:"route,omitempty"`

	// Guards is the expected registry content in evaluation order (guards).
	Guards []string `yaml:"guards,omitempty"`

	// Form names the form (dirty, baseline).
	Form string `yaml:"form,omitempty"`

	// Value is the expected IsDirty (dirty).
	Value *bool `yaml:"value,omitempty"`

	// Fields is a subset of the expected baseline (baseline).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Count is the expected number of navigation actions run
	// (action_count) or matching journal events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kind, Guard and Source select journal events (trace_*).
	Kind   string `yaml:"kind,omitempty"`
	Guard  string `yaml:"guard,omitempty"`
	Source string `yaml:"source,omitempty"`

	// Detail is a subset of the event detail (trace_contains).
	Detail map[string]any `yaml:"detail,omitempty"`

	// Kinds is the expected order of first occurrences (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertRoute         = "route"
	AssertGuards        = "guards"
	AssertDirty         = "dirty"
	AssertActionCount   = "action_count"
	AssertBaseline      = "baseline"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads a scenario file, resolving profile paths relative to
// the file's directory. Unknown fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Profiles {
		if !filepath.IsAbs(p) {
			scenario.Profiles[i] = filepath.Join(base, p)
		}
	}
	for _, p := range scenario.Profiles {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("invalid scenario: profile file not found: %s", p)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. Profile paths are
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if err := s.Timing.validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}

	forms := make(map[string]bool, len(s.Forms))
	for i, f := range s.Forms {
		if f.ID == "" {
			return fmt.Errorf("forms[%d]: id is required", i)
		}
		if forms[f.ID] {
			return fmt.Errorf("forms[%d]: duplicate id %q", i, f.ID)
		}
		forms[f.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, forms); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, forms); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, forms map[string]bool) error {
	op, arg := step.Op()
	switch op {
	case "":
		return fmt.Errorf("steps[%d]: exactly one operation is required", index)
	case OpMount, OpLoad, OpEdit, OpSave, OpUnmount, OpLeave:
		if !forms[arg] {
			return fmt.Errorf("steps[%d]: unknown form %q", index, arg)
		}
	case OpConfirm:
		if arg != ChoiceDiscard && arg != ChoiceStay {
			return fmt.Errorf("steps[%d]: confirm must be discard or stay, got %q", index, arg)
		}
	case OpLocal:
		if arg != ChoiceDiscard && arg != ChoiceStay {
			return fmt.Errorf("steps[%d]: local must be discard or stay, got %q", index, arg)
		}
		if !forms[step.Form] {
			return fmt.Errorf("steps[%d]: local requires a known form, got %q", index, step.Form)
		}
	}
	if op == OpEdit && len(step.Set) == 0 {
		return fmt.Errorf("steps[%d]: edit requires set", index)
	}
	if op == OpLeave && step.To == "" {
		return fmt.Errorf("steps[%d]: leave requires to", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion, forms map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRoute:
		if a.Route == "" {
			return fmt.Errorf("assertions[%d]: route is required for route", index)
		}
	case AssertGuards, AssertActionCount:
	case AssertDirty:
		if !forms[a.Form] {
			return fmt.Errorf("assertions[%d]: unknown form %q", index, a.Form)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for dirty", index)
		}
	case AssertBaseline:
		if !forms[a.Form] {
			return fmt.Errorf("assertions[%d]: unknown form %q", index, a.Form)
		}
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for baseline", index)
		}
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
