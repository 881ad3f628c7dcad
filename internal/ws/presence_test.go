package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPresence() *Presence {
	return NewPresence(NewHub(NewRegistry(), zap.NewNop()), zap.NewNop())
}

func TestPresenceConnectSendsSnapshotThenAnnounces(t *testing.T) {
	p := newTestPresence()
	alice := newTestClient("alice")
	p.Connect(alice)

	frames := drain(t, alice)
	require.Len(t, frames, 2)
	assert.Equal(t, "initial_status", frames[0]["type"])
	assert.Equal(t, []any{}, frames[0]["online"])
	assert.Equal(t, "status", frames[1]["type"])
	assert.Equal(t, "online", frames[1]["status"])

	bob := newTestClient("bob")
	p.Connect(bob)
	bobFrames := drain(t, bob)
	assert.Equal(t, []any{"alice"}, bobFrames[0]["online"])

	aliceFrames := drain(t, alice)
	require.Len(t, aliceFrames, 1)
	assert.Equal(t, "bob", aliceFrames[0]["username"])
}

func TestPresenceOnlineBeforeOffline(t *testing.T) {
	p := newTestPresence()
	observer := newTestClient("observer")
	p.Connect(observer)
	drain(t, observer)

	x := newTestClient("x")
	p.Connect(x)
	assert.True(t, p.Disconnect(x))
	assert.False(t, p.Disconnect(x))

	frames := ofType(drain(t, observer), "status")
	require.Len(t, frames, 2)
	assert.Equal(t, "online", frames[0]["status"])
	assert.Equal(t, "offline", frames[1]["status"])
}

func TestPresenceSupersededConnectionEmitsNoOffline(t *testing.T) {
	p := newTestPresence()
	observer := newTestClient("observer")
	p.Connect(observer)
	drain(t, observer)

	first := newTestClient("alice")
	second := newTestClient("alice")
	p.Connect(first)
	p.Connect(second)

	select {
	case <-first.Done():
	default:
		t.Fatal("superseded connection should be closed")
	}
	assert.Len(t, ofType(drain(t, first), "system"), 1)

	assert.False(t, p.Disconnect(first))
	got, ok := p.hub.Registry().Resolve("alice")
	require.True(t, ok)
	assert.Same(t, second, got)

	p.hub.Unicast("alice", []byte(`{"type":"ping"}`))
	assert.Len(t, ofType(drain(t, second), "ping"), 1)

	for _, f := range ofType(drain(t, observer), "status") {
		assert.Equal(t, "online", f["status"])
	}
}

func TestPresenceEvict(t *testing.T) {
	p := newTestPresence()
	observer := newTestClient("observer")
	p.Connect(observer)
	bob := newTestClient("bob")
	p.Connect(bob)
	drain(t, observer)

	assert.True(t, p.Evict("bob", []byte(`{"type":"ban"}`)))
	assert.False(t, p.Disconnect(bob))

	statuses := ofType(drain(t, observer), "status")
	require.Len(t, statuses, 1)
	assert.Equal(t, "offline", statuses[0]["status"])
}

func TestPresenceReconnectRaceEndsOnline(t *testing.T) {
	p := newTestPresence()
	observer := newTestClient("observer")
	p.Connect(observer)
	drain(t, observer)

	prev := newTestClient("alice")
	p.Connect(prev)
	drain(t, prev)

	for i := 0; i < 200; i++ {
		next := NewClient(nil, ConnInfo{Username: "alice", ConnID: fmt.Sprintf("alice-%d", i)}, ClientOptions{SendBuffer: 16}, zap.NewNop())
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Disconnect(prev)
		}()
		go func() {
			defer wg.Done()
			p.Connect(next)
		}()
		wg.Wait()

		got, ok := p.hub.Registry().Resolve("alice")
		require.True(t, ok)
		require.Same(t, next, got)

		statuses := ofType(drain(t, observer), "status")
		require.NotEmpty(t, statuses)
		require.Equal(t, "online", statuses[len(statuses)-1]["status"], "iteration %d", i)

		drain(t, next)
		prev = next
	}
}
