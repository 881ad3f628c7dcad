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

const defaultSearchLimit = 100

// ChannelHandler serves read-only channel queries.
type ChannelHandler struct {
	messages repositories.MessageRepository
	access   AccessChecker
	notifier Notifier
	limit    int
	logger   *zap.Logger
}

func NewChannelHandler(messages repositories.MessageRepository, access AccessChecker, notifier Notifier, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{messages: messages, access: access, notifier: notifier, limit: defaultSearchLimit, logger: logger}
}

// Search handles GET /channels/:channel/search?q=, newest first.
func (h *ChannelHandler) Search(c *gin.Context) {
	channel := c.Param("channel")
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondError(c, h.logger, apperr.InvalidArg("query parameter q required"))
		return
	}

	ctx := c.Request.Context()
	ok, err := h.access.CanAccess(ctx, currentUser(c), channel)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !ok {
		respondError(c, h.logger, apperr.Forbidden("no access to channel"))
		return
	}

	found, err := h.messages.Search(ctx, channel, query, h.limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	views := make([]models.MessageView, 0, len(found))
	for _, m := range found {
		views = append(views, models.NewMessageView(m, models.AuthorProfile{}, nil))
	}
	c.JSON(http.StatusOK, gin.H{"channel": channel, "messages": views})
}

// Online handles GET /online.
func (h *ChannelHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.notifier.Online()})
}
