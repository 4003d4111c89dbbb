package tracker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/navguard/internal/guard"
	"github.com/roach88/navguard/internal/ir"
	"github.com/roach88/navguard/internal/profile"
	"github.com/roach88/navguard/internal/quiesce"
	"github.com/roach88/navguard/internal/testutil"
)

// fakeForm is a mutable form whose snapshot the tracker samples.
type fakeForm struct {
	mu   sync.Mutex
	data ir.IRObject
}

func newForm(pairs ...ir.IRPair) *fakeForm {
	return &fakeForm{data: ir.Obj(pairs...)}
}

func (f *fakeForm) Snapshot() ir.IRObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Clone()
}

func (f *fakeForm) set(key string, v ir.IRValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = v
}

type recorder struct {
	mu     sync.Mutex
	events []guard.Event
}

func (r *recorder) Append(_ context.Context, ev guard.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []guard.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []guard.EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	guards  *guard.Interceptor
	journal *recorder
	sleeper *testutil.InstantSleeper
}

func newFixture() *fixture {
	j := &recorder{}
	return &fixture{
		guards: guard.New(
			guard.WithLogger(quietLogger()),
			guard.WithJournal(j),
			guard.WithIDGenerator(guard.NewSequenceGenerator("nav")),
		),
		journal: j,
		sleeper: &testutil.InstantSleeper{},
	}
}

func (fx *fixture) track(id string, src Source, opts ...Option) *Tracker {
	base := []Option{WithLogger(quietLogger()), WithSleeper(fx.sleeper)}
	return New(id, src, fx.guards, append(base, opts...)...)
}

func invoiceForm() *fakeForm {
	return newForm(
		ir.O("number", ir.IRString("INV-7")),
		ir.O("client_id", ir.IRInt(3)),
		ir.O("discount", ir.IRInt(0)),
		ir.O("total", ir.IRInt(12000)),
	)
}

func TestTracker_StabilizeAdoptsAndRegisters(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)

	assert.Equal(t, StateLoading, tr.State())
	assert.False(t, tr.IsDirty(), "no baseline yet")
	assert.False(t, fx.guards.Registry().Has("invoice-form-7"))

	require.NoError(t, tr.Stabilize(context.Background()))

	assert.Equal(t, StateClean, tr.State())
	assert.Equal(t, form.Snapshot(), tr.Baseline())
	assert.True(t, fx.guards.Registry().Has("invoice-form-7"))
	assert.False(t, tr.IsDirty())
	assert.Equal(t, []guard.EventKind{guard.EventBaselineAdopted, guard.EventRegistered}, fx.journal.kinds())
}

func TestTracker_EditMakesDirty(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))

	form.set("discount", ir.IRInt(10))
	assert.True(t, tr.IsDirty())
	assert.Equal(t, StateDirty, tr.Refresh())

	changes, err := tr.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "/discount", changes[0].Path)

	form.set("discount", ir.IRInt(0))
	assert.False(t, tr.IsDirty(), "reverting the edit restores clean")
	assert.Equal(t, StateClean, tr.Refresh())

	assert.Contains(t, fx.journal.kinds(), guard.EventDirty)
	assert.Contains(t, fx.journal.kinds(), guard.EventClean)
}

func TestTracker_DirtyRoundTripAfterSave(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))

	form.set("discount", ir.IRInt(10))
	require.True(t, tr.IsDirty())

	require.NoError(t, tr.MarkSaved())
	assert.Equal(t, StateClean, tr.State())
	assert.False(t, tr.IsDirty())
	assert.Equal(t, ir.IRInt(10), tr.Baseline()["discount"])

	form.set("discount", ir.IRInt(20))
	assert.True(t, tr.IsDirty())
	form.set("discount", ir.IRInt(10))
	assert.False(t, tr.IsDirty())

	assert.True(t, fx.guards.Registry().Has("invoice-form-7"), "save keeps the guard registered")
	assert.Len(t, fx.sleeper.Waits(), 3, "save does not re-run detection")
}

func TestTracker_BlocksGlobalNavigation(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))

	var blocked []guard.Blocked
	fx.guards.Subscribe("dialog", func(b guard.Blocked) { blocked = append(blocked, b) })

	route := "/invoices/7"
	ok, err := fx.guards.Intercept(context.Background(), func() { route = "/clients" }, "menu")
	require.NoError(t, err)
	assert.True(t, ok, "clean form does not block")
	assert.Equal(t, "/clients", route)

	route = "/invoices/7"
	form.set("discount", ir.IRInt(10))
	ok, err = fx.guards.Intercept(context.Background(), func() { route = "/clients" }, "menu")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, blocked, 1)
	assert.Equal(t, "invoice-form-7", blocked[0].BlockingGuardID)
	assert.Equal(t, "/invoices/7", route)
}

func TestTracker_Abandoned(t *testing.T) {
	fx := newFixture()
	form := newForm(ir.O("client_id", ir.IRNull{}))
	tr := fx.track("invoice-form-new", form, WithComplete(func(s ir.IRObject) bool {
		return !ir.IsEmpty(s["client_id"])
	}))

	err := tr.Stabilize(context.Background())
	assert.ErrorIs(t, err, quiesce.ErrAbandoned)
	assert.Equal(t, StateUntracked, tr.State())
	assert.False(t, fx.guards.Registry().Has("invoice-form-new"))

	form.set("client_id", ir.IRInt(1))
	assert.False(t, tr.IsDirty(), "untracked forms are never dirty")
	assert.Equal(t, []guard.EventKind{guard.EventBaselineAbandoned}, fx.journal.kinds())
}

func TestTracker_TeardownDuringStabilization(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	var tr *Tracker
	fx.sleeper.OnSleep = func(n int, _ time.Duration) {
		if n == 1 {
			tr.Teardown()
		}
	}
	tr = fx.track("invoice-form-7", form)

	err := tr.Stabilize(context.Background())
	assert.ErrorIs(t, err, ErrTornDown)
	assert.Equal(t, StateTornDown, tr.State())
	assert.Nil(t, tr.Baseline())
	assert.False(t, fx.guards.Registry().Has("invoice-form-7"), "late baseline must not register")
	assert.NotContains(t, fx.journal.kinds(), guard.EventBaselineAdopted)
}

// teardownOn tears the tracker down from inside Record as soon as kind is
// journaled, before the tracker's next step runs.
type teardownOn struct {
	*guard.Interceptor
	kind guard.EventKind
	tr   *Tracker
}

func (g *teardownOn) Record(ctx context.Context, ev guard.Event) {
	g.Interceptor.Record(ctx, ev)
	if ev.Kind == g.kind {
		g.tr.Teardown()
	}
}

func TestTracker_TeardownBetweenAdoptAndRegister(t *testing.T) {
	fx := newFixture()
	g := &teardownOn{Interceptor: fx.guards, kind: guard.EventBaselineAdopted}
	g.tr = New("invoice-form-9", invoiceForm(), g, WithLogger(quietLogger()), WithSleeper(fx.sleeper))

	err := g.tr.Stabilize(context.Background())
	assert.ErrorIs(t, err, ErrTornDown)
	assert.Equal(t, StateTornDown, g.tr.State())
	assert.False(t, fx.guards.Registry().Has("invoice-form-9"), "guard must not outlive its form")
	assert.Equal(t, []guard.EventKind{
		guard.EventBaselineAdopted,
		guard.EventTornDown,
		guard.EventRegistered,
		guard.EventUnregistered,
	}, fx.journal.kinds())
}

func TestTracker_TeardownDuringMarkSaved(t *testing.T) {
	fx := newFixture()
	g := &teardownOn{Interceptor: fx.guards, kind: guard.EventSaved}
	g.tr = New("invoice-form-new", invoiceForm(), g, WithLogger(quietLogger()), WithSleeper(fx.sleeper))

	assert.ErrorIs(t, g.tr.MarkSaved(), ErrTornDown)
	assert.Equal(t, StateTornDown, g.tr.State())
	assert.False(t, fx.guards.Registry().Has("invoice-form-new"))
	assert.Equal(t, 0, fx.guards.Registry().Len())
}

func TestTracker_BackgroundTeardownIsNotAWarning(t *testing.T) {
	fx := newFixture()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var tr *Tracker
	fx.sleeper.OnSleep = func(n int, _ time.Duration) {
		if n == 1 {
			tr.Teardown()
		}
	}
	tr = fx.track("invoice-form-7", invoiceForm(), WithLogger(logger))

	tr.LoadComplete()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, StateTornDown, tr.State())
	assert.Empty(t, logs.String())
}

func TestTracker_BackgroundAbandonWarns(t *testing.T) {
	fx := newFixture()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tr := fx.track("invoice-form-new", invoiceForm(),
		WithLogger(logger),
		WithComplete(func(ir.IRObject) bool { return false }),
	)

	tr.LoadComplete()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, StateUntracked, tr.State())
	assert.Contains(t, logs.String(), "form left untracked")
}

func TestTracker_CallerCancelRewindsToLoading(t *testing.T) {
	fx := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	fx.sleeper.OnSleep = func(int, time.Duration) { cancel() }
	tr := fx.track("invoice-form-7", invoiceForm())

	err := tr.Stabilize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateLoading, tr.State())

	fx.sleeper.OnSleep = nil
	require.NoError(t, tr.Stabilize(context.Background()))
	assert.Equal(t, StateClean, tr.State())
}

func TestTracker_LoadCompleteRunsInBackground(t *testing.T) {
	fx := newFixture()
	tr := fx.track("invoice-form-7", invoiceForm())

	tr.LoadComplete()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, StateClean, tr.State())
	assert.True(t, fx.guards.Registry().Has("invoice-form-7"))

	tr.LoadComplete()
	assert.Len(t, fx.sleeper.Waits(), 3, "second LoadComplete is ignored")
}

func TestTracker_StabilizeTwice(t *testing.T) {
	fx := newFixture()
	tr := fx.track("invoice-form-7", invoiceForm())
	require.NoError(t, tr.Stabilize(context.Background()))
	assert.ErrorIs(t, tr.Stabilize(context.Background()), ErrAlreadyStarted)
}

func TestTracker_MarkSavedBeforeBaseline(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-new", form)

	require.NoError(t, tr.MarkSaved())
	assert.Equal(t, StateClean, tr.State())
	assert.True(t, fx.guards.Registry().Has("invoice-form-new"))

	tr.LoadComplete()
	assert.Empty(t, fx.sleeper.Waits(), "detector does not run after save")

	form.set("total", ir.IRInt(1))
	assert.True(t, tr.IsDirty())
}

func TestTracker_ProfileIgnoresUntrackedFields(t *testing.T) {
	set, err := profile.LoadDir(filepath.Join("..", "profile", "testdata"))
	require.NoError(t, err)
	p, err := set.Get("invoice")
	require.NoError(t, err)

	fx := newFixture()
	form := newForm(
		ir.O("number", ir.IRString("INV-7")),
		ir.O("date", ir.IRString("2026-10-01")),
		ir.O("client_id", ir.IRInt(3)),
		ir.O("items", ir.Arr(ir.Obj(ir.O("tariff_id", ir.IRInt(5)), ir.O("qty", ir.IRInt(2))))),
		ir.O("discount", ir.IRInt(0)),
		ir.O("total", ir.IRInt(12000)),
		ir.O("ui_tab", ir.IRString("lines")),
	)
	tr := fx.track("invoice-form-7", form, WithProfile(p, true))
	require.NoError(t, tr.Stabilize(context.Background()))

	_, hasTab := tr.Baseline()["ui_tab"]
	assert.False(t, hasTab)

	form.set("ui_tab", ir.IRString("notes"))
	assert.False(t, tr.IsDirty(), "untracked field")

	form.set("discount", ir.IRInt(5))
	assert.True(t, tr.IsDirty())
}

func TestTracker_LocalLeaveClean(t *testing.T) {
	fx := newFixture()
	tr := fx.track("invoice-form-7", invoiceForm())
	require.NoError(t, tr.Stabilize(context.Background()))

	left := 0
	assert.True(t, tr.RequestLeave(func() { left++ }))
	assert.Equal(t, 1, left)
	assert.False(t, tr.DialogVisible())
}

func TestTracker_LocalLeaveStay(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))
	form.set("discount", ir.IRInt(10))

	left := 0
	assert.False(t, tr.RequestLeave(func() { left++ }))
	assert.True(t, tr.DialogVisible())

	tr.Stay()
	assert.False(t, tr.DialogVisible())
	assert.False(t, tr.DiscardAndLeave(), "nothing held after stay")
	assert.Equal(t, 0, left)
	assert.True(t, tr.IsDirty(), "stay keeps the edits")
}

func TestTracker_LocalDiscardAndLeave(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))
	form.set("discount", ir.IRInt(10))

	left := 0
	require.False(t, tr.RequestLeave(func() { left++ }))
	assert.True(t, tr.DiscardAndLeave())
	assert.False(t, tr.DiscardAndLeave())

	assert.Equal(t, 1, left)
	assert.Equal(t, StateUntracked, tr.State())
	assert.False(t, fx.guards.Registry().Has("invoice-form-7"))
	assert.Contains(t, fx.journal.kinds(), guard.EventDiscarded)
}

func TestTracker_TeardownIdempotent(t *testing.T) {
	fx := newFixture()
	tr := fx.track("invoice-form-7", invoiceForm())
	require.NoError(t, tr.Stabilize(context.Background()))

	tr.Teardown()
	tr.Teardown()

	assert.Equal(t, StateTornDown, tr.State())
	assert.False(t, fx.guards.Registry().Has("invoice-form-7"))
	assert.ErrorIs(t, tr.MarkSaved(), ErrTornDown)

	var torn int
	for _, k := range fx.journal.kinds() {
		if k == guard.EventTornDown {
			torn++
		}
	}
	assert.Equal(t, 1, torn)
}

func TestTracker_TeardownBeforeLoad(t *testing.T) {
	fx := newFixture()
	tr := fx.track("invoice-form-new", invoiceForm())
	tr.Teardown()

	assert.ErrorIs(t, tr.Stabilize(context.Background()), ErrTornDown)
	assert.False(t, fx.guards.Registry().Has("invoice-form-new"))
}

func TestTracker_PredicateReflectsDirty(t *testing.T) {
	fx := newFixture()
	form := invoiceForm()
	tr := fx.track("invoice-form-7", form)
	require.NoError(t, tr.Stabilize(context.Background()))

	pred := tr.Predicate()
	dirty, err := pred(context.Background())
	require.NoError(t, err)
	assert.False(t, dirty)

	form.set("number", ir.IRString("INV-8"))
	dirty, err = pred(context.Background())
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestSourceFunc(t *testing.T) {
	src := SourceFunc(func() ir.IRObject { return ir.Obj(ir.O("a", ir.IRInt(1))) })
	assert.Equal(t, ir.IRInt(1), src.Snapshot()["a"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "torn_down", StateTornDown.String())
	assert.Equal(t, "unknown", State(42).String())
}
