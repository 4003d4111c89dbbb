package guard

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_SubscribeAndPublish(t *testing.T) {
	n := NewNotifier(quietLogger())
	var got []string
	n.Subscribe("a", func(b Blocked) { got = append(got, "a:"+b.NavigationID) })

	assert.Equal(t, 1, n.Publish(Blocked{NavigationID: "nav-1"}))
	assert.Equal(t, []string{"a:nav-1"}, got)
}

func TestNotifier_UnsubscribeIdempotent(t *testing.T) {
	n := NewNotifier(quietLogger())
	unsub := n.Subscribe("a", func(Blocked) {})
	n.Subscribe("b", func(Blocked) {})

	unsub()
	unsub()
	assert.Equal(t, 1, n.Len())
}

func TestNotifier_HandlerMayUnsubscribe(t *testing.T) {
	n := NewNotifier(quietLogger())
	calls := 0
	var unsub func()
	unsub = n.Subscribe("once", func(Blocked) {
		calls++
		unsub()
	})

	n.Publish(Blocked{})
	n.Publish(Blocked{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Len())
}

func TestNotifier_WarnsWithoutSubscriber(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, 0, n.Publish(Blocked{NavigationID: "nav-9"}))
	assert.Contains(t, buf.String(), "no confirmation flow mounted")
	assert.Contains(t, buf.String(), "navigation_id=nav-9")
}

func TestNotifier_WarnsOnSecondSubscriber(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	n.Subscribe("first", func(Blocked) {})
	assert.Empty(t, buf.String())
	n.Subscribe("second", func(Blocked) {})
	assert.Contains(t, buf.String(), "more than one")
}
