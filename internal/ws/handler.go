package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-server/internal/middleware"
	"chat-server/internal/observability"
)

// UserWebSocketHandler accepts the single per-user websocket.
type UserWebSocketHandler struct {
	presence *Presence
	router   *Router
	authn    *middleware.Authenticator
	opts     ClientOptions
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewUserWebSocketHandler(presence *Presence, router *Router, authn *middleware.Authenticator, opts ClientOptions, logger *zap.Logger) *UserWebSocketHandler {
	return &UserWebSocketHandler{
		presence: presence,
		router:   router,
		authn:    authn,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates via ?token= or a bearer header, upgrades, and runs
// the connection until the transport closes.
func (h *UserWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	username, err := h.authn.Authenticate(ctx, token)
	if errors.Is(err, middleware.ErrUnauthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err != nil {
		h.logger.Error("websocket handshake", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	requestID := c.GetString(middleware.RequestIDKey)
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	identity := observability.ClientIdentity(c.Request, username)
	info := ConnInfo{
		ConnID:      newConnID(),
		Username:    identity.Username,
		DeviceID:    identity.DeviceID,
		IP:          identity.IP,
		RequestID:   requestID,
		TraceID:     observability.TraceID(ctx),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, h.opts, h.logger)

	go client.writePump()
	go h.serve(context.WithoutCancel(ctx), client)
}

// serve runs the read loop. Teardown is deferred so it runs on every exit
// path, including a panic escaping the router.
func (h *UserWebSocketHandler) serve(ctx context.Context, client *Client) {
	reason := ""
	observability.IncWSActive()
	publishLifecycle(ctx, client.Info(), "ws_connect", "")
	defer func() {
		h.presence.Disconnect(client)
		client.Close()
		observability.DecWSActive()
		publishLifecycle(ctx, client.Info(), "ws_disconnect", reason)
	}()

	h.presence.Connect(client)
	reason = client.readPump(ctx, func(ctx context.Context, raw []byte) {
		h.router.Dispatch(ctx, client, raw)
	})
}

func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSPayload{
			WS: observability.WSInfo{
				Event:      event,
				ConnID:     info.ConnID,
				DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
				Reason:     reason,
			},
			Identity: info.Identity(),
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
