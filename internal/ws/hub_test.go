package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"chat-server/internal/models"
)

func newTestHub(names ...string) (*Hub, map[string]*Client) {
	hub := NewHub(NewRegistry(), zap.NewNop())
	clients := map[string]*Client{}
	for _, name := range names {
		c := newTestClient(name)
		hub.Registry().Register(c)
		clients[name] = c
	}
	return hub, clients
}

func TestHubUnicast(t *testing.T) {
	hub, clients := newTestHub("alice", "bob")

	assert.True(t, hub.Unicast("bob", models.SystemEvent{Type: models.OutSystem, Content: "hi"}))
	assert.False(t, hub.Unicast("nobody", models.SystemEvent{Type: models.OutSystem}))

	frames := drain(t, clients["bob"])
	assert.Len(t, frames, 1)
	assert.Equal(t, "hi", frames[0]["content"])
	assert.Empty(t, drain(t, clients["alice"]))
}

func TestHubFullQueueDropsWithoutUnregistering(t *testing.T) {
	hub := NewHub(NewRegistry(), zap.NewNop())
	slow := NewClient(nil, ConnInfo{Username: "slow"}, ClientOptions{SendBuffer: 1}, zap.NewNop())
	hub.Registry().Register(slow)

	assert.True(t, hub.Unicast("slow", []byte(`{"type":"a"}`)))
	assert.False(t, hub.Unicast("slow", []byte(`{"type":"b"}`)))

	_, ok := hub.Registry().Resolve("slow")
	assert.True(t, ok)
}

func TestHubBroadcastIsolatesFailures(t *testing.T) {
	hub, clients := newTestHub("alice", "bob", "carol")
	clients["bob"].Close()

	n := hub.Broadcast(models.SystemEvent{Type: models.OutSystem, Content: "all"})
	assert.Equal(t, 2, n)
	assert.Len(t, drain(t, clients["alice"]), 1)
	assert.Len(t, drain(t, clients["carol"]), 1)
}

func TestHubBroadcastUnencodable(t *testing.T) {
	hub, _ := newTestHub("alice")
	assert.Equal(t, 0, hub.Broadcast(map[string]any{"bad": make(chan int)}))
}

func TestHubMulticastDedupes(t *testing.T) {
	hub, clients := newTestHub("alice", "bob")

	n := hub.Multicast([]string{"alice", "alice", "ghost", "bob"}, models.SystemEvent{Type: models.OutSystem})
	assert.Equal(t, 2, n)
	assert.Len(t, drain(t, clients["alice"]), 1)
}

func TestHubForceDisconnect(t *testing.T) {
	hub, clients := newTestHub("bob")

	assert.True(t, hub.ForceDisconnect("bob", models.BanEvent{Type: models.OutBan, By: "root"}))
	assert.False(t, hub.ForceDisconnect("bob", models.BanEvent{Type: models.OutBan}))

	frames := drain(t, clients["bob"])
	assert.Len(t, frames, 1)
	assert.Equal(t, "ban", frames[0]["type"])
	select {
	case <-clients["bob"].Done():
	default:
		t.Fatal("expected client to be closed")
	}
	_, ok := hub.Registry().Resolve("bob")
	assert.False(t, ok)
}
