package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/apperr"
	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

const (
	actionAccept = "accept"
	actionReject = "reject"
)

// FriendHandler manages friend requests and the DM list.
type FriendHandler struct {
	friends  repositories.FriendRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewFriendHandler(friends repositories.FriendRepository, notifier Notifier, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, notifier: notifier, logger: logger}
}

// SendRequest handles POST /friends/requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		Receiver string `json:"receiver" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sender := currentUser(c)
	receiver := strings.TrimSpace(req.Receiver)
	if receiver == sender {
		respondError(c, h.logger, apperr.InvalidArg("cannot befriend yourself"))
		return
	}

	created, err := h.friends.CreateRequest(c.Request.Context(), sender, receiver)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.notifier.Unicast(receiver, models.NewRequestEvent{
		Type:      models.OutNewRequest,
		RequestID: created.ID,
		Sender:    sender,
	})
	c.JSON(http.StatusCreated, gin.H{"request": created})
}

// ListRequests handles GET /friends/requests.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	pending, err := h.friends.ListPending(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": pending})
}

// RespondRequest handles POST /friends/requests/:request_id/respond. Only
// the receiver may answer.
func (h *FriendHandler) RespondRequest(c *gin.Context) {
	requestID, ok := parseID(c, "request_id")
	if !ok {
		return
	}
	var body struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Action != actionAccept && body.Action != actionReject {
		respondError(c, h.logger, apperr.InvalidArg("action must be accept or reject"))
		return
	}

	ctx := c.Request.Context()
	req, err := h.friends.GetRequest(ctx, requestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if req.Receiver != currentUser(c) {
		respondError(c, h.logger, apperr.Forbidden("only the receiver may respond"))
		return
	}

	if body.Action == actionReject {
		if err := h.friends.DeleteRequest(ctx, requestID); err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	if err := h.friends.AcceptRequest(ctx, requestID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.notifier.Unicast(req.Sender, models.RequestAcceptedEvent{Type: models.OutRequestAccepted, Friend: req.Receiver})
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "channel": models.DMChannel(req.Sender, req.Receiver)})
}

type dmEntry struct {
	Username string `json:"username"`
	Channel  string `json:"channel"`
	Notepad  bool   `json:"notepad"`
}

// ListDMs handles GET /dms. The caller's own entry is the notepad.
func (h *FriendHandler) ListDMs(c *gin.Context) {
	me := currentUser(c)
	names, err := h.friends.ListDMs(c.Request.Context(), me)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]dmEntry, 0, len(names))
	for _, name := range names {
		out = append(out, dmEntry{Username: name, Channel: models.DMChannel(me, name), Notepad: name == me})
	}
	c.JSON(http.StatusOK, gin.H{"dms": out})
}
