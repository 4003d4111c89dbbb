// Package confirm is the global "unsaved changes" dialog.
//
// A Flow subscribes to blocked navigations and holds the one currently on
// screen. The user answers with Discard (run the navigation) or Stay (drop
// it). The flow never evaluates guards itself; it only resolves what the
// interceptor parked.
package confirm

import (
	"log/slog"
	"sync"

	"github.com/roach88/navguard/internal/guard"
)

// Guards is the part of the interceptor a Flow needs.
// Implemented by *guard.Interceptor.
type Guards interface {
	Subscribe(name string, handler guard.BlockedHandler) func()
	ConfirmPending() bool
	CancelPending() bool
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithName sets the subscriber name shown in diagnostics. Default "confirm".
func WithName(name string) Option {
	return func(f *Flow) {
		if name != "" {
			f.name = name
		}
	}
}

// OnChange is called with the dialog visibility after every change.
func OnChange(fn func(visible bool)) Option {
	return func(f *Flow) { f.onChange = fn }
}

// Flow is a mounted confirmation dialog.
type Flow struct {
	guards   Guards
	logger   *slog.Logger
	name     string
	onChange func(bool)

	mu          sync.Mutex
	mounted     bool
	current     *guard.Blocked
	unsubscribe func()
}

// Mount subscribes a new Flow to blocked navigations.
func Mount(guards Guards, opts ...Option) *Flow {
	f := &Flow{
		guards: guards,
		logger: slog.Default(),
		name:   "confirm",
	}
	for _, opt := range opts {
		opt(f)
	}
	f.mounted = true
	unsub := guards.Subscribe(f.name, f.show)

	f.mu.Lock()
	f.unsubscribe = unsub
	f.mu.Unlock()
	return f
}

func (f *Flow) show(b guard.Blocked) {
	f.mu.Lock()
	if !f.mounted {
		f.mu.Unlock()
		return
	}
	prev := f.current
	f.current = &b
	f.mu.Unlock()

	if prev != nil {
		f.logger.Debug("dialog now shows a newer navigation",
			"previous", prev.NavigationID,
			"navigation_id", b.NavigationID,
		)
	}
	f.notify(true)
}

// Visible reports whether the dialog is open.
func (f *Flow) Visible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != nil
}

// Current returns the navigation the dialog is asking about.
func (f *Flow) Current() (guard.Blocked, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return guard.Blocked{}, false
	}
	return *f.current, true
}

// Discard closes the dialog and runs the pending navigation, dropping the
// form's edits. Returns false when the dialog was closed.
func (f *Flow) Discard() bool {
	b, ok := f.close()
	if !ok {
		return false
	}
	f.logger.Info("user discarded changes", "navigation_id", b.NavigationID, "guard_id", b.BlockingGuardID)
	f.guards.ConfirmPending()
	return true
}

// Stay closes the dialog and cancels the pending navigation.
// Returns false when the dialog was closed.
func (f *Flow) Stay() bool {
	b, ok := f.close()
	if !ok {
		return false
	}
	f.logger.Info("user stayed on form", "navigation_id", b.NavigationID, "guard_id", b.BlockingGuardID)
	f.guards.CancelPending()
	return true
}

// Unmount unsubscribes the flow. An open dialog is closed and its pending
// navigation cancelled. Safe to call repeatedly.
func (f *Flow) Unmount() {
	f.mu.Lock()
	unsub := f.unsubscribe
	f.unsubscribe = nil
	f.mounted = false
	open := f.current != nil
	f.current = nil
	f.mu.Unlock()

	if unsub == nil {
		return
	}
	unsub()
	if open {
		f.guards.CancelPending()
		f.notify(false)
	}
}

func (f *Flow) close() (guard.Blocked, bool) {
	f.mu.Lock()
	b := f.current
	f.current = nil
	f.mu.Unlock()

	if b == nil {
		return guard.Blocked{}, false
	}
	f.notify(false)
	return *b, true
}

func (f *Flow) notify(visible bool) {
	if f.onChange != nil {
		f.onChange(visible)
	}
}
