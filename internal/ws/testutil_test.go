package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-server/internal/models"
	"chat-server/internal/repositories/memory"
)

func newTestClient(name string) *Client {
	return NewClient(nil, ConnInfo{Username: name, ConnID: name + "-conn"}, ClientOptions{SendBuffer: 512}, zap.NewNop())
}

// drain returns every frame queued on c, decoded.
func drain(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		select {
		case raw := <-c.Outbound():
			var frame map[string]any
			require.NoError(t, json.Unmarshal(raw, &frame), string(raw))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func ofType(frames []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

type auditRecord struct {
	level, text string
	username    *string
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *recordingAuditor) Emit(_ context.Context, level, text, _ string, username *string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{level: level, text: text, username: username})
}

type testEnv struct {
	store    *memory.Store
	registry *Registry
	hub      *Hub
	presence *Presence
	router   *Router
	audit    *recordingAuditor
}

func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	store := memory.New()
	for _, u := range users {
		require.NoError(t, store.CreateUser(context.Background(), u, "hash", defaultProfile(u)))
	}
	registry := NewRegistry()
	hub := NewHub(registry, zap.NewNop())
	presence := NewPresence(hub, zap.NewNop())
	audit := &recordingAuditor{}
	router := NewRouter(hub, presence, store, store, store, audit, 50, zap.NewNop())
	return &testEnv{store: store, registry: registry, hub: hub, presence: presence, router: router, audit: audit}
}

// connect registers a detached client and discards the connect frames of
// every client passed in others.
func (e *testEnv) connect(t *testing.T, name string, others ...*Client) *Client {
	t.Helper()
	c := newTestClient(name)
	e.presence.Connect(c)
	drain(t, c)
	for _, o := range others {
		drain(t, o)
	}
	return c
}

func (e *testEnv) send(t *testing.T, c *Client, event map[string]any) {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	e.router.Dispatch(context.Background(), c, raw)
}

func defaultProfile(name string) models.Profile {
	return models.Profile{AvatarURL: name + ".png", Bio: "hi, I am " + name}
}
