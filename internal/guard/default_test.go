package guard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetDefault discards the process-wide interceptor between tests.
func resetDefault(t *testing.T) {
	t.Helper()
	defaultOnce = sync.Once{}
	defaultIn = nil
	t.Cleanup(func() {
		defaultOnce = sync.Once{}
		defaultIn = nil
	})
}

func TestDefault_InitOnce(t *testing.T) {
	resetDefault(t)

	first := Init(WithLogger(quietLogger()))
	second := Init(WithFailClosed(true))
	assert.Same(t, first, second)
	assert.Same(t, first, Default())
}

func TestDefault_PackageHelpers(t *testing.T) {
	resetDefault(t)
	Init(WithLogger(quietLogger()), WithIDGenerator(NewSequenceGenerator("")))

	require.NoError(t, RegisterGuard("form", constant(true)))

	var blocked []Blocked
	unsub := SubscribeBlocked("dialog", func(b Blocked) { blocked = append(blocked, b) })
	defer unsub()

	runs := 0
	ok, err := InterceptNavigation(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, blocked, 1)

	assert.True(t, CancelPendingNavigation())
	assert.Equal(t, 0, runs)

	_, err = InterceptNavigation(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)
	assert.True(t, ConfirmPendingNavigation())
	assert.Equal(t, 1, runs)

	UnregisterGuard("form")
	ok, err = InterceptNavigation(context.Background(), func() { runs++ }, "menu")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, runs)
}
