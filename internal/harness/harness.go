package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/navguard/internal/confirm"
	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/profile"
	"github.com/roach88/navguard/internal/quiesce"
	"github.com/roach88/navguard/internal/store"
	"github.com/roach88/navguard/internal/testutil"
	"github.com/roach88/navguard/internal/tracker"
)

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	store     *store.Store
	logger    *slog.Logger
	timing    quiesce.Timing
	guardOpts []guard.Option
}

// WithStore journals into st instead of a fresh in-memory store. The
// caller owns st; seqs continue after its last event and the trace holds
// only this run's events.
func WithStore(st *store.Store) Option {
	return func(c *runConfig) { c.store = st }
}

// WithLogger sets the logger handed to every component. Logs are
// discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTiming sets the detector timing a scenario's timing section
// overrides field by field. Defaults to quiesce.DefaultTiming.
func WithTiming(tm quiesce.Timing) Option {
	return func(c *runConfig) { c.timing = tm }
}

// WithGuardOptions applies interceptor settings such as the failure
// policy. The journal, clock, id generator and logger stay the harness's.
func WithGuardOptions(opts ...guard.Option) Option {
	return func(c *runConfig) { c.guardOpts = append(c.guardOpts, opts...) }
}

// Harness executes one scenario against the real interceptor, trackers
// and confirmation flow. Detector waits are simulated.
type Harness struct {
	guards   *guard.Interceptor
	flow     *confirm.Flow
	profiles profile.Set
	timing   quiesce.Timing
	logger   *slog.Logger

	forms   map[string]*form
	mounted []string
	route   string
	actions int
}

// form is a simulated form instance. It is the tracker's Source.
type form struct {
	spec     Form
	initial  ir.IRObject
	cascade  []ir.IRObject
	data     ir.IRObject
	tracker  *tracker.Tracker
	sleeper  *testutil.InstantSleeper
	existing bool
}

func (f *form) Snapshot() ir.IRObject { return f.data.Clone() }

// apply merges a partial update into the form state.
func (f *form) apply(update ir.IRObject) {
	for k, v := range update {
		f.data[k] = ir.CloneValue(v)
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open the journal and compile the scenario's profiles
//  2. Mount the global confirmation flow on a fresh interceptor
//  3. Execute steps, checking expect clauses
//  4. Read the trace back from the journal and evaluate assertions
//
// An error means the scenario could not run; failed expectations are
// reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		timing: quiesce.DefaultTiming(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := context.Background()

	st := cfg.store
	if st == nil {
		var err error
		st, err = store.Open(store.MemoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}
	start, err := st.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal position: %w", err)
	}

	h, err := newHarness(scenario, st, start, cfg)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			result.AddError(err.Error())
		}
	}

	trace, err := st.ReadEventsSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	result.Trace = trace
	result.Route = h.route
	result.Actions = h.actions
	result.Guards = h.guards.Registry().IDs()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store, start int64, cfg runConfig) (*Harness, error) {
	logger := cfg.logger
	timing := scenario.Timing.Apply(cfg.timing)
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}

	profiles := profile.Set{}
	if len(scenario.Profiles) > 0 {
		var err error
		profiles, err = profile.LoadFiles(scenario.Profiles...)
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
	}

	clock := testutil.NewDeterministicClock()
	clock.ResetTo(start)

	in := guard.New(append(cfg.guardOpts,
		guard.WithJournal(st),
		guard.WithClock(clock),
		guard.WithIDGenerator(guard.NewSequenceGenerator("nav")),
		guard.WithLogger(logger),
	)...)

	h := &Harness{
		guards:   in,
		flow:     confirm.Mount(in, confirm.WithLogger(logger)),
		profiles: profiles,
		timing:   timing,
		logger:   logger,
		forms:    make(map[string]*form, len(scenario.Forms)),
	}

	for _, spec := range scenario.Forms {
		f, err := newForm(spec)
		if err != nil {
			return nil, err
		}
		if spec.Profile != "" {
			if _, err := profiles.Get(spec.Profile); err != nil {
				return nil, fmt.Errorf("form %s: %w", spec.ID, err)
			}
		}
		h.forms[spec.ID] = f
	}
	return h, nil
}

func newForm(spec Form) (*form, error) {
	initial, err := ir.ObjectFromMap(spec.Data)
	if err != nil {
		return nil, fmt.Errorf("form %s: data: %w", spec.ID, err)
	}
	cascade := make([]ir.IRObject, len(spec.Cascade))
	for i, update := range spec.Cascade {
		cascade[i], err = ir.ObjectFromMap(update)
		if err != nil {
			return nil, fmt.Errorf("form %s: cascade[%d]: %w", spec.ID, i, err)
		}
	}
	return &form{spec: spec, initial: initial, cascade: cascade, existing: spec.Existing}, nil
}

// executeStep runs one step and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	op, arg := step.Op()
	var proceeded *bool
	formID := step.Form

	switch op {
	case OpMount:
		formID = arg
		if err := h.mount(arg); err != nil {
			return fmt.Errorf("steps[%d] mount: %w", index, err)
		}

	case OpLoad:
		formID = arg
		f, err := h.mountedForm(arg)
		if err != nil {
			return fmt.Errorf("steps[%d] load: %w", index, err)
		}
		if err := f.tracker.Stabilize(ctx); err != nil {
			if !errors.Is(err, quiesce.ErrAbandoned) {
				return fmt.Errorf("steps[%d] load: %w", index, err)
			}
			h.logger.Info("form left untracked", "guard_id", arg)
		}

	case OpEdit:
		formID = arg
		f, err := h.mountedForm(arg)
		if err != nil {
			return fmt.Errorf("steps[%d] edit: %w", index, err)
		}
		update, err := ir.ObjectFromMap(step.Set)
		if err != nil {
			return fmt.Errorf("steps[%d] edit: %w", index, err)
		}
		f.apply(update)
		f.tracker.Refresh()

	case OpSave:
		formID = arg
		f, err := h.mountedForm(arg)
		if err != nil {
			return fmt.Errorf("steps[%d] save: %w", index, err)
		}
		if err := f.tracker.MarkSaved(); err != nil {
			return fmt.Errorf("steps[%d] save: %w", index, err)
		}

	case OpNavigate:
		source := step.Source
		if source == "" {
			source = "scenario"
		}
		ok, err := h.guards.Intercept(ctx, h.navigateTo(arg), source)
		if err != nil {
			return fmt.Errorf("steps[%d] navigate: %w", index, err)
		}
		proceeded = &ok

	case OpConfirm:
		var ok bool
		if arg == ChoiceDiscard {
			ok = h.flow.Discard()
		} else {
			ok = h.flow.Stay()
		}
		if !ok {
			return fmt.Errorf("steps[%d] confirm %s: no navigation pending", index, arg)
		}

	case OpLeave:
		formID = arg
		f, err := h.mountedForm(arg)
		if err != nil {
			return fmt.Errorf("steps[%d] leave: %w", index, err)
		}
		ok := f.tracker.RequestLeave(h.navigateTo(step.To))
		proceeded = &ok

	case OpLocal:
		f, err := h.mountedForm(step.Form)
		if err != nil {
			return fmt.Errorf("steps[%d] local: %w", index, err)
		}
		if arg == ChoiceDiscard {
			if !f.tracker.DiscardAndLeave() {
				return fmt.Errorf("steps[%d] local discard: dialog not open", index)
			}
		} else {
			f.tracker.Stay()
		}

	case OpUnmount:
		formID = arg
		if _, err := h.mountedForm(arg); err != nil {
			return fmt.Errorf("steps[%d] unmount: %w", index, err)
		}
		h.unmount(arg)

	default:
		return fmt.Errorf("steps[%d]: exactly one operation is required", index)
	}

	h.logger.Debug("step completed", "step", index, "op", op, "arg", arg)

	if step.Expect != nil {
		for _, msg := range h.checkExpect(index, op, formID, proceeded, step.Expect) {
			result.AddError(msg)
		}
	}
	return nil
}

// mount creates a fresh tracker over the form's initial data.
func (h *Harness) mount(id string) error {
	f := h.forms[id]
	if f == nil {
		return fmt.Errorf("unknown form %q", id)
	}
	if f.tracker != nil {
		return fmt.Errorf("form %s already mounted", id)
	}

	f.data = f.initial.Clone()
	f.sleeper = &testutil.InstantSleeper{OnSleep: func(n int, _ time.Duration) {
		if n <= len(f.cascade) {
			f.apply(f.cascade[n-1])
		}
	}}

	opts := []tracker.Option{
		tracker.WithLogger(h.logger),
		tracker.WithTiming(h.timing),
		tracker.WithSleeper(f.sleeper),
	}
	if f.spec.Profile != "" {
		p, err := h.profiles.Get(f.spec.Profile)
		if err != nil {
			return err
		}
		opts = append(opts, tracker.WithProfile(p, f.existing))
	}
	f.tracker = tracker.New(id, f, h.guards, opts...)
	h.mounted = append(h.mounted, id)
	return nil
}

func (h *Harness) mountedForm(id string) (*form, error) {
	f := h.forms[id]
	if f == nil || f.tracker == nil {
		return nil, fmt.Errorf("form %q not mounted", id)
	}
	return f, nil
}

func (h *Harness) unmount(id string) {
	f := h.forms[id]
	f.tracker.Teardown()
	f.tracker = nil
	for i, m := range h.mounted {
		if m == id {
			h.mounted = append(h.mounted[:i], h.mounted[i+1:]...)
			break
		}
	}
}

// navigateTo returns the action of a navigation to route. Leaving the
// page unmounts every form on it, in mount order.
func (h *Harness) navigateTo(route string) guard.Action {
	return func() {
		h.route = route
		h.actions++
		for _, id := range append([]string(nil), h.mounted...) {
			h.unmount(id)
		}
	}
}

func (h *Harness) checkExpect(index int, op, formID string, proceeded *bool, e *Expect) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d] %s: ", index, op)+fmt.Sprintf(format, args...))
	}

	if e.Proceeded != nil {
		switch {
		case proceeded == nil:
			fail("proceeded is only reported by navigate and leave")
		case *proceeded != *e.Proceeded:
			fail("proceeded = %v, want %v", *proceeded, *e.Proceeded)
		}
	}

	if e.Route != "" && h.route != e.Route {
		fail("route = %q, want %q", h.route, e.Route)
	}

	var tr *tracker.Tracker
	if f := h.forms[formID]; f != nil {
		tr = f.tracker
	}

	if e.State != "" {
		state := "unmounted"
		if tr != nil {
			state = tr.State().String()
		}
		if state != e.State {
			fail("form %s state = %s, want %s", formID, state, e.State)
		}
	}

	if e.Dirty != nil {
		dirty := tr != nil && tr.IsDirty()
		if dirty != *e.Dirty {
			fail("form %s dirty = %v, want %v", formID, dirty, *e.Dirty)
		}
	}

	if e.Dialog != nil {
		visible := h.flow.Visible()
		if op == OpLeave || op == OpLocal {
			visible = tr != nil && tr.DialogVisible()
		}
		if visible != *e.Dialog {
			fail("dialog visible = %v, want %v", visible, *e.Dialog)
		}
	}
	return errs
}
