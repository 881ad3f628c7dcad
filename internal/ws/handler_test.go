package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-server/internal/auth"
	"chat-server/internal/middleware"
	"chat-server/internal/mocks"
	"chat-server/internal/observability"
)

type wsServer struct {
	env    *testEnv
	tokens *auth.TokenManager
	srv    *httptest.Server
}

func newWSServer(t *testing.T, users ...string) *wsServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t, users...)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := NewUserWebSocketHandler(env.presence, env.router, middleware.NewAuthenticator(tokens, env.store), ClientOptions{}, zap.NewNop())

	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsServer{env: env, tokens: tokens, srv: srv}
}

func (s *wsServer) url(query string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws" + query
}

func (s *wsServer) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	token, err := s.tokens.IssueToken(username)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(s.url("?token="+token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == typ {
			return frame
		}
	}
}

func TestHandshakeRejectsMissingOrBadToken(t *testing.T) {
	s := newWSServer(t, "alice")

	_, resp, err := websocket.DefaultDialer.Dial(s.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(s.url("?token=garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerHeaderIsAccepted(t *testing.T) {
	s := newWSServer(t, "alice")
	token, err := s.tokens.IssueToken("alice")
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(s.url(""), header)
	require.NoError(t, err)
	defer conn.Close()

	frame := readUntil(t, conn, "initial_status")
	assert.Equal(t, []any{}, frame["online"])
}

func TestSessionLifecycle(t *testing.T) {
	s := newWSServer(t, "alice", "bob")

	alice := s.dial(t, "alice")
	readUntil(t, alice, "initial_status")

	bob := s.dial(t, "bob")
	initial := readUntil(t, bob, "initial_status")
	assert.Equal(t, []any{"alice"}, initial["online"])

	online := readUntil(t, alice, "status")
	assert.Equal(t, "bob", online["username"])
	assert.Equal(t, "online", online["status"])

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "message", "channel": "general", "content": "hello @alice"}))

	msg := readUntil(t, alice, "message")
	assert.Equal(t, "bob", msg["username"])
	assert.Equal(t, "hello @alice", msg["content"])
	mention := readUntil(t, alice, "mention")
	assert.Equal(t, "bob", mention["from"])
	assert.Equal(t, "hello @alice", readUntil(t, bob, "message")["content"])

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	bob.Close()

	offline := readUntil(t, alice, "status")
	assert.Equal(t, "bob", offline["username"])
	assert.Equal(t, "offline", offline["status"])
	assert.Eventually(t, func() bool {
		_, ok := s.env.registry.Resolve("bob")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	s := newWSServer(t, "alice", "bob")
	observer := s.dial(t, "bob")
	readUntil(t, observer, "initial_status")

	first := s.dial(t, "alice")
	readUntil(t, first, "initial_status")
	readUntil(t, observer, "status")

	second := s.dial(t, "alice")
	readUntil(t, second, "initial_status")

	notice := readUntil(t, first, "system")
	assert.Equal(t, "Signed in from another connection", notice["content"])

	again := readUntil(t, observer, "status")
	assert.Equal(t, "online", again["status"])

	require.NoError(t, observer.WriteJSON(map[string]any{"type": "message", "channel": "general", "content": "still there?"}))
	assert.Equal(t, "still there?", readUntil(t, second, "message")["content"])
}

func TestLifecycleEventsArePublished(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]observability.WSPayload{}
	)
	pub := new(mocks.PublisherMock)
	pub.On("PublishJSON", mock.Anything, observability.RoutingWSEvents, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			env := args.Get(2).(observability.EventEnvelope)
			payload := env.Payload.(observability.WSPayload)
			if payload.Identity.Username != "carol" {
				return
			}
			mu.Lock()
			seen[env.EventName] = payload
			mu.Unlock()
		}).
		Return(nil)
	observability.SetPublisher(pub)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	s := newWSServer(t, "carol")
	token, err := s.tokens.IssueToken("carol")
	require.NoError(t, err)
	header := http.Header{}
	header.Set("X-Device-Id", "laptop")
	conn, _, err := websocket.DefaultDialer.Dial(s.url("?token="+token), header)
	require.NoError(t, err)
	readUntil(t, conn, "initial_status")
	conn.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := seen["ws_disconnect"]
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	connect, ok := seen["ws_connect"]
	require.True(t, ok)
	assert.Equal(t, "laptop", connect.Identity.DeviceID)
	assert.Equal(t, seen["ws_disconnect"].WS.ConnID, connect.WS.ConnID)
}

func TestBannedUserCannotReconnectWithOldToken(t *testing.T) {
	s := newWSServer(t, "root", "bob")
	require.NoError(t, s.env.store.SetAdmin(context.Background(), "root", true))
	token, err := s.tokens.IssueToken("bob")
	require.NoError(t, err)

	root := s.dial(t, "root")
	readUntil(t, root, "initial_status")
	bob, _, err := websocket.DefaultDialer.Dial(s.url("?token="+token), nil)
	require.NoError(t, err)
	defer bob.Close()
	readUntil(t, bob, "initial_status")
	for {
		if st := readUntil(t, root, "status"); st["username"] == "bob" && st["status"] == "online" {
			break
		}
	}

	require.NoError(t, root.WriteJSON(map[string]any{"type": "ban_user", "target": "bob"}))
	readUntil(t, bob, "ban")
	readUntil(t, root, "system")

	_, resp, err := websocket.DefaultDialer.Dial(s.url("?token="+token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, online := s.env.registry.Resolve("bob")
	assert.False(t, online)
}
