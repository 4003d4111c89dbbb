package tracker

import "github.com/roach88/navguard/internal/guard"

// RequestLeave handles the form's own close or back button.
//
// A clean form runs action immediately and returns true. A dirty form opens
// its local confirmation dialog holding action and returns false; the user
// then picks DiscardAndLeave or Stay. A second request while the dialog is
// open replaces the held action.
func (t *Tracker) RequestLeave(action guard.Action) bool {
	if action == nil {
		return false
	}
	if !t.IsDirty() {
		action()
		return true
	}

	t.mu.Lock()
	t.dialog = true
	t.held = action
	t.mu.Unlock()

	t.logger.Debug("local leave blocked")
	return false
}

// DialogVisible reports whether the local confirmation dialog is open.
func (t *Tracker) DialogVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialog
}

// DiscardAndLeave stops tracking, unregisters the guard, then runs the held
// action once. Returns false when the dialog was not open.
func (t *Tracker) DiscardAndLeave() bool {
	t.mu.Lock()
	if !t.dialog {
		t.mu.Unlock()
		return false
	}
	action := t.held
	t.dialog = false
	t.held = nil
	t.mu.Unlock()

	if t.stop(StateUntracked) {
		t.guards.Unregister(t.id)
		t.record(guard.EventDiscarded, nil)
	}
	if action != nil {
		action()
	}
	return true
}

// Stay closes the dialog and drops the held action.
func (t *Tracker) Stay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialog = false
	t.held = nil
}
