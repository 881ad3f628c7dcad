package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-server/internal/auth"
	"chat-server/internal/middleware"
	"chat-server/internal/mocks"
	"chat-server/internal/models"
	"chat-server/internal/repositories/memory"
	"chat-server/internal/telemetry"
)

// storeAccess mirrors the realtime router's rules for the test store.
type storeAccess struct{ store *memory.Store }

func (a storeAccess) CanAccess(ctx context.Context, username, channel string) (bool, error) {
	parsed := models.ParseChannel(channel)
	switch parsed.Kind {
	case models.ChannelPublic:
		return true, nil
	case models.ChannelDM:
		return parsed.Involves(username), nil
	case models.ChannelGroup:
		return a.store.IsMember(ctx, parsed.GroupID, username)
	default:
		return false, nil
	}
}

type fixture struct {
	store     *memory.Store
	notifier  *mocks.NotifierMock
	publisher *mocks.PublisherMock
	tokens    *auth.TokenManager
	router    *gin.Engine
}

func newFixture(t *testing.T, adminTag string, bootstrapAdmins ...string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	notifier := new(mocks.NotifierMock)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(nil).Maybe()
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-server", "test", zap.NewNop())
	tokens := auth.NewTokenManager("handler-secret", time.Hour)
	logger := zap.NewNop()

	authH := NewAuthHandler(store, tokens, bootstrapAdmins, audit, logger)
	profileH := NewProfileHandler(store, notifier, adminTag, audit, logger)
	friendH := NewFriendHandler(store, notifier, logger)
	groupH := NewGroupHandler(store, store, audit, logger)
	channelH := NewChannelHandler(store, storeAccess{store: store}, notifier, logger)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/register", authH.Register)
	r.POST("/login", authH.Login)

	authed := r.Group("/", middleware.AuthMiddleware(middleware.NewAuthenticator(tokens, store)))
	authed.GET("/profile/:username", profileH.GetProfile)
	authed.PUT("/profile", profileH.UpdateProfile)
	authed.POST("/friends/requests", friendH.SendRequest)
	authed.GET("/friends/requests", friendH.ListRequests)
	authed.POST("/friends/requests/:request_id/respond", friendH.RespondRequest)
	authed.GET("/dms", friendH.ListDMs)
	authed.POST("/groups", groupH.CreateGroup)
	authed.GET("/groups", groupH.ListGroups)
	authed.POST("/groups/:group_id/members", groupH.AddMember)
	authed.GET("/channels/:channel/search", channelH.Search)
	authed.GET("/online", channelH.Online)

	return &fixture{store: store, notifier: notifier, publisher: publisher, tokens: tokens, router: r}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := f.tokens.IssueToken(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		rec, _ := f.do(t, http.MethodPost, "/register", "", gin.H{"username": name, "password": "secret-" + name})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, "")

	rec, resp := f.do(t, http.MethodPost, "/register", "", gin.H{"username": "alice", "password": "hunter22", "real_name": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", resp["username"])

	rec, _ = f.do(t, http.MethodPost, "/register", "", gin.H{"username": "alice", "password": "another1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = f.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := resp["token"].(string)
	username, err := f.tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	profile := resp["profile"].(map[string]any)
	assert.Equal(t, "Alice", profile["real_name"])
	assert.Equal(t, "Newcomer", profile["bio"])

	stored, err := f.store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotContains(t, stored.PasswordHash, "hunter22")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, "")

	rec, _ := f.do(t, http.MethodPost, "/register", "", gin.H{"username": "a b", "password": "hunter22"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/register", "", gin.H{"username": "bob", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/register", "", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFailureIsAudited(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice")

	rec, resp := f.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid username or password", resp["error"])

	rec, _ = f.do(t, http.MethodPost, "/login", "", gin.H{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestLoginRepositoryFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, "alice").Return(nil, assert.AnError).Once()
	h := NewAuthHandler(users, auth.NewTokenManager("s", time.Hour), nil, nil, zap.NewNop())

	r := gin.New()
	r.POST("/login", h.Login)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"username":"alice","password":"pw"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t, "", "root")
	f.register(t, "root", "bob")

	admin, err := f.store.IsAdmin(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, admin)
	admin, err = f.store.IsAdmin(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t, "")
	rec, _ := f.do(t, http.MethodGet, "/dms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileReadAndUpdate(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice", "bob")

	f.notifier.On("Broadcast", models.StatusUpdateEvent{
		Type:      models.OutStatusUpdate,
		Username:  "alice",
		Status:    "busy",
		AvatarURL: "a.png",
	}).Return(2).Once()

	rec, resp := f.do(t, http.MethodPut, "/profile", "alice", gin.H{"bio": "gopher #admin", "avatar_url": "a.png", "status": "busy"})
	require.Equal(t, http.StatusOK, rec.Code)
	profile := resp["profile"].(map[string]any)
	assert.Equal(t, "gopher #admin", profile["bio"])
	assert.Equal(t, false, profile["is_admin"])

	rec, resp = f.do(t, http.MethodGet, "/profile/alice", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "busy", resp["profile"].(map[string]any)["status"])

	rec, _ = f.do(t, http.MethodGet, "/profile/nobody", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.notifier.AssertExpectations(t)
}

func TestAdminTagPromotes(t *testing.T) {
	f := newFixture(t, "#admin")
	f.register(t, "alice")
	f.notifier.On("Broadcast", mock.AnythingOfType("models.StatusUpdateEvent")).Return(1)

	rec, resp := f.do(t, http.MethodPut, "/profile", "alice", gin.H{"bio": "gopher #admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	profile := resp["profile"].(map[string]any)
	assert.Equal(t, "gopher", profile["bio"])
	assert.Equal(t, true, profile["is_admin"])

	rec, resp = f.do(t, http.MethodPut, "/profile", "alice", gin.H{"bio": "plain"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["profile"].(map[string]any)["is_admin"], "admin is sticky")
}

func TestFriendRequestLifecycle(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice", "bob", "carol")

	f.notifier.On("Unicast", "bob", mock.AnythingOfType("models.NewRequestEvent")).Return(true).Once()
	rec, resp := f.do(t, http.MethodPost, "/friends/requests", "alice", gin.H{"receiver": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	requestID := int64(resp["request"].(map[string]any)["id"].(float64))

	rec, _ = f.do(t, http.MethodPost, "/friends/requests", "alice", gin.H{"receiver": "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/friends/requests", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["requests"], 1)

	path := "/friends/requests/" + jsonNumber(requestID) + "/respond"
	rec, _ = f.do(t, http.MethodPost, path, "carol", gin.H{"action": "accept"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.notifier.On("Unicast", "alice", models.RequestAcceptedEvent{Type: models.OutRequestAccepted, Friend: "bob"}).Return(true).Once()
	rec, resp = f.do(t, http.MethodPost, path, "bob", gin.H{"action": "accept"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DMChannel("alice", "bob"), resp["channel"])

	rec, _ = f.do(t, http.MethodPost, "/friends/requests", "bob", gin.H{"receiver": "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/dms", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dms := resp["dms"].([]any)
	require.Len(t, dms, 2)
	var notepad, friend map[string]any
	for _, d := range dms {
		entry := d.(map[string]any)
		if entry["notepad"] == true {
			notepad = entry
		} else {
			friend = entry
		}
	}
	require.NotNil(t, notepad)
	require.NotNil(t, friend)
	assert.Equal(t, "alice", notepad["username"])
	assert.Equal(t, "bob", friend["username"])
	assert.Equal(t, models.DMChannel("alice", "bob"), friend["channel"])
	f.notifier.AssertExpectations(t)
}

func TestFriendRequestRejections(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice", "bob")

	rec, _ := f.do(t, http.MethodPost, "/friends/requests", "alice", gin.H{"receiver": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/friends/requests", "alice", gin.H{"receiver": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.notifier.On("Unicast", "bob", mock.Anything).Return(false).Once()
	rec, resp := f.do(t, http.MethodPost, "/friends/requests", "alice", gin.H{"receiver": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/friends/requests/" + jsonNumber(int64(resp["request"].(map[string]any)["id"].(float64))) + "/respond"

	rec, _ = f.do(t, http.MethodPost, path, "bob", gin.H{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPost, path, "bob", gin.H{"action": "reject"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", resp["status"])

	rec, _ = f.do(t, http.MethodPost, path, "bob", gin.H{"action": "reject"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/friends/requests/abc/respond", "bob", gin.H{"action": "reject"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	friends, err := f.store.AreFriends(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.False(t, friends)
}

func TestGroups(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice", "bob", "carol")

	rec, resp := f.do(t, http.MethodPost, "/groups", "alice", gin.H{"name": "team"})
	require.Equal(t, http.StatusCreated, rec.Code)
	groupID := int64(resp["id"].(float64))
	assert.Equal(t, models.GroupChannel(groupID), resp["channel"])
	members := "/groups/" + jsonNumber(groupID) + "/members"

	rec, _ = f.do(t, http.MethodPost, members, "carol", gin.H{"username": "carol"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, members, "alice", gin.H{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, members, "alice", gin.H{"username": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, members, "bob", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/groups/999/members", "alice", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/groups", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := resp["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "team", groups[0].(map[string]any)["name"])

	rec, resp = f.do(t, http.MethodGet, "/groups", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp["groups"])
}

func TestSearchRespectsChannelAccess(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice", "bob", "carol")
	ctx := context.Background()
	dm := models.DMChannel("alice", "bob")
	for _, content := range []string{"Deploy at noon", "lunch?", "deploy done"} {
		_, err := f.store.InsertMessage(ctx, models.Message{Username: "alice", Channel: dm, Content: content})
		require.NoError(t, err)
	}

	rec, resp := f.do(t, http.MethodGet, "/channels/"+dm+"/search?q=deploy", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := resp["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "deploy done", msgs[0].(map[string]any)["content"])

	rec, _ = f.do(t, http.MethodGet, "/channels/"+dm+"/search?q=deploy", "carol", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/channels/general/search", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnline(t *testing.T) {
	f := newFixture(t, "")
	f.register(t, "alice")
	f.notifier.On("Online").Return([]string{"alice", "bob"}).Once()

	rec, resp := f.do(t, http.MethodGet, "/online", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"alice", "bob"}, resp["online"])
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
