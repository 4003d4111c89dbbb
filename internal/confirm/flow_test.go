package confirm

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/navguard/internal/guard"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dirtyInterceptor(t *testing.T) *guard.Interceptor {
	t.Helper()
	in := guard.New(
		guard.WithLogger(quietLogger()),
		guard.WithIDGenerator(guard.NewSequenceGenerator("nav")),
	)
	require.NoError(t, in.Register("invoice-form-7", func(context.Context) (bool, error) {
		return true, nil
	}))
	return in
}

func TestFlow_ShowsBlockedNavigation(t *testing.T) {
	in := dirtyInterceptor(t)
	var changes []bool
	f := Mount(in, WithLogger(quietLogger()), OnChange(func(v bool) { changes = append(changes, v) }))
	defer f.Unmount()

	assert.False(t, f.Visible())

	_, err := in.Intercept(context.Background(), func() {}, "menu:clients")
	require.NoError(t, err)

	assert.True(t, f.Visible())
	cur, ok := f.Current()
	require.True(t, ok)
	assert.Equal(t, "nav-1", cur.NavigationID)
	assert.Equal(t, "invoice-form-7", cur.BlockingGuardID)
	assert.Equal(t, "menu:clients", cur.SourceTag)
	assert.Equal(t, []bool{true}, changes)
}

func TestFlow_DiscardRunsNavigationOnce(t *testing.T) {
	in := dirtyInterceptor(t)
	f := Mount(in, WithLogger(quietLogger()))
	defer f.Unmount()

	runs := 0
	_, err := in.Intercept(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)

	assert.True(t, f.Discard())
	assert.False(t, f.Visible())
	assert.Equal(t, 1, runs)

	assert.False(t, f.Discard())
	assert.False(t, f.Stay())
	assert.Equal(t, 1, runs)
}

func TestFlow_StayCancels(t *testing.T) {
	in := dirtyInterceptor(t)
	f := Mount(in, WithLogger(quietLogger()))
	defer f.Unmount()

	runs := 0
	_, err := in.Intercept(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)

	assert.True(t, f.Stay())
	assert.False(t, f.Visible())
	_, pending := in.Pending()
	assert.False(t, pending)

	assert.False(t, in.ConfirmPending())
	assert.Equal(t, 0, runs)
}

func TestFlow_NewerNavigationReplacesDialog(t *testing.T) {
	in := dirtyInterceptor(t)
	f := Mount(in, WithLogger(quietLogger()))
	defer f.Unmount()

	var ran []string
	_, err := in.Intercept(context.Background(), func() { ran = append(ran, "first") }, "menu")
	require.NoError(t, err)
	_, err = in.Intercept(context.Background(), func() { ran = append(ran, "second") }, "back")
	require.NoError(t, err)

	cur, ok := f.Current()
	require.True(t, ok)
	assert.Equal(t, "nav-2", cur.NavigationID)

	f.Discard()
	assert.Equal(t, []string{"second"}, ran)
}

func TestFlow_UnmountCancelsOpenDialog(t *testing.T) {
	in := dirtyInterceptor(t)
	f := Mount(in, WithLogger(quietLogger()))

	runs := 0
	_, err := in.Intercept(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)

	f.Unmount()
	f.Unmount()

	assert.False(t, f.Visible())
	assert.Equal(t, 0, in.Subscribers())
	_, pending := in.Pending()
	assert.False(t, pending)
	assert.Equal(t, 0, runs)
}

func TestFlow_IgnoresAfterUnmount(t *testing.T) {
	in := dirtyInterceptor(t)
	f := Mount(in, WithLogger(quietLogger()))
	f.Unmount()

	_, err := in.Intercept(context.Background(), func() {}, "menu")
	require.NoError(t, err)
	assert.False(t, f.Visible())
}

// The discount scenario end to end: edit, navigate, discard.
func TestFlow_DiscountScenario(t *testing.T) {
	in := guard.New(guard.WithLogger(quietLogger()))
	discount := 0
	require.NoError(t, in.Register("invoice-form-7", func(context.Context) (bool, error) {
		return discount != 0, nil
	}))
	f := Mount(in, WithName("global-confirm"), WithLogger(quietLogger()))
	defer f.Unmount()

	route := "/invoices/7"
	discount = 10

	ok, err := in.Intercept(context.Background(), func() { route = "/clients" }, "menu:clients")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, f.Visible())

	in.Unregister("invoice-form-7")
	require.True(t, f.Discard())
	assert.Equal(t, "/clients", route)
	assert.Equal(t, 0, in.Registry().Len())
}
