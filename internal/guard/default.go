package guard

import (
	"context"
	"sync"
)

// The application has one navigation surface, so forms and the
// confirmation flow share a process-wide interceptor.
var (
	defaultOnce sync.Once
	defaultIn   *Interceptor
)

// Init configures the process-wide interceptor. Only the first call (or the
// first call to Default) takes effect; later calls return the existing one.
func Init(opts ...Option) *Interceptor {
	defaultOnce.Do(func() {
		defaultIn = New(opts...)
	})
	return defaultIn
}

// Default returns the process-wide interceptor, creating it with default
// options if Init was never called.
func Default() *Interceptor {
	return Init()
}

// RegisterGuard registers pred on the process-wide interceptor.
func RegisterGuard(id string, pred Predicate) error {
	return Default().Register(id, pred)
}

// UnregisterGuard removes id from the process-wide interceptor.
func UnregisterGuard(id string) {
	Default().Unregister(id)
}

// InterceptNavigation routes a navigation through the process-wide
// interceptor.
func InterceptNavigation(ctx context.Context, action Action, sourceTag string) (bool, error) {
	return Default().Intercept(ctx, action, sourceTag)
}

// ConfirmPendingNavigation runs the pending navigation, if any.
func ConfirmPendingNavigation() bool {
	return Default().ConfirmPending()
}

// CancelPendingNavigation drops the pending navigation, if any.
func CancelPendingNavigation() bool {
	return Default().CancelPending()
}

// SubscribeBlocked subscribes to blocked navigations on the process-wide
// interceptor.
func SubscribeBlocked(name string, handler BlockedHandler) func() {
	return Default().Subscribe(name, handler)
}
