package guard

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(41), NewClockAt(41).Current())
}

func TestClock_Next(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(12), c.Next())
	assert.Equal(t, int64(12), c.Current(), "Current must not increment")
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*calls)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seqs <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for s := range seqs {
		assert.False(t, seen[s], "seq %d generated twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*calls)
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "nav-1", g.Generate())
	assert.Equal(t, "nav-2", g.Generate())

	g = NewSequenceGenerator("logout")
	assert.Equal(t, "logout-1", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}
