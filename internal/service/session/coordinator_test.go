package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRearmer struct {
	coord   *Coordinator
	started []string
	seen    []string
}

func (r *recordingRearmer) Start(sessionID string) {
	r.started = append(r.started, sessionID)
	if r.coord != nil {
		r.seen = append(r.seen, r.coord.SessionID())
	}
}

func TestSetSessionIDRearmsWithAppliedID(t *testing.T) {
	rearmer := &recordingRearmer{}
	c := New(rearmer)
	rearmer.coord = c

	assert.Empty(t, c.SessionID())

	c.SetSessionID("s1")
	c.SetSessionID("s2")

	assert.Equal(t, "s2", c.SessionID())
	assert.Equal(t, []string{"s1", "s2"}, rearmer.started)
	// The re-arm observes the new id, and reading it does not deadlock.
	assert.Equal(t, []string{"s1", "s2"}, rearmer.seen)
}

func TestWithSessionIDDoesNotRearm(t *testing.T) {
	rearmer := &recordingRearmer{}
	c := New(rearmer, WithSessionID("seed"))

	assert.Equal(t, "seed", c.SessionID())
	assert.Empty(t, rearmer.started)
}

func TestNilRearmer(t *testing.T) {
	c := New(nil)
	assert.NotPanics(t, func() { c.SetSessionID("s1") })
	assert.Equal(t, "s1", c.SessionID())
}

func TestTryBeginTurn(t *testing.T) {
	c := New(nil)

	require.True(t, c.TryBeginTurn())
	assert.True(t, c.Busy())
	assert.False(t, c.TryBeginTurn())

	c.SetBusy(false)
	assert.False(t, c.Busy())
	assert.True(t, c.TryBeginTurn())
}

func TestTryBeginTurnAdmitsOneConcurrentCaller(t *testing.T) {
	c := New(nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryBeginTurn() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
