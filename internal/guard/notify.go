package guard

import (
	"log/slog"
	"sync"
)

// Blocked is delivered once per blocked interception.
type Blocked struct {
	NavigationID    string
	SourceTag       string
	BlockingGuardID string

	// Resolve runs this navigation if it is still the pending one.
	// It is a no-op once the navigation was confirmed, cancelled or
	// superseded.
	Resolve func()
}

// BlockedHandler consumes blocked notifications.
type BlockedHandler func(Blocked)

// Notifier is the publish/subscribe channel for blocked navigations.
//
// Delivery is synchronous fan-out on the publishing goroutine, handlers in
// subscription order. Exactly one subscriber, the mounted confirmation flow,
// is expected at any time. Publishing with zero or several subscribers
// still works but is logged, since it means a blocked navigation has no
// dialog, or several dialogs competing for the same decision.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID int
	logger *slog.Logger
}

type subscriber struct {
	id      int
	name    string
	handler BlockedHandler
}

// NewNotifier creates a notifier with no subscribers.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Subscribe registers handler under a diagnostic name and returns a func
// that removes it. The returned func is idempotent.
func (n *Notifier) Subscribe(name string, handler BlockedHandler) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber{id: id, name: name, handler: handler})
	count := len(n.subs)
	n.mu.Unlock()

	if count > 1 {
		n.logger.Warn("more than one blocked-navigation subscriber mounted",
			"subscriber", name,
			"subscribers", count,
		)
	}

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers b to every subscriber and returns how many received it.
// Handlers run without the notifier lock so they may unsubscribe or resolve
// the navigation synchronously.
func (n *Notifier) Publish(b Blocked) int {
	n.mu.RLock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	switch len(subs) {
	case 0:
		n.logger.Warn("blocked navigation has no confirmation flow mounted",
			"navigation_id", b.NavigationID,
			"guard_id", b.BlockingGuardID,
		)
	case 1:
	default:
		n.logger.Warn("blocked navigation delivered to several subscribers",
			"navigation_id", b.NavigationID,
			"subscribers", len(subs),
		)
	}

	for _, s := range subs {
		s.handler(b)
	}
	return len(subs)
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
