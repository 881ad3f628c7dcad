package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/apperr"
	"chat-server/internal/models"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
)

// GroupHandler manages group channels.
type GroupHandler struct {
	groups repositories.GroupRepository
	users  repositories.UserRepository
	audit  Auditor
	logger *zap.Logger
}

func NewGroupHandler(groups repositories.GroupRepository, users repositories.UserRepository, audit Auditor, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, users: users, audit: audit, logger: logger}
}

type groupResponse struct {
	models.Group
	Channel string `json:"channel"`
}

// CreateGroup handles POST /groups. The caller becomes owner and member.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, h.logger, apperr.InvalidArg("group name required"))
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), currentUser(c), name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	emitAudit(c, h.audit, telemetry.LevelInfo, "group created")
	c.JSON(http.StatusCreated, groupResponse{Group: group, Channel: group.Channel()})
}

// AddMember handles POST /groups/:group_id/members. Any member may invite.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.groups.GetGroup(ctx, groupID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	member, err := h.groups.IsMember(ctx, groupID, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !member {
		respondError(c, h.logger, apperr.Forbidden("not a member"))
		return
	}
	if _, err := h.users.GetUser(ctx, req.Username); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.groups.AddMember(ctx, groupID, req.Username); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_id": groupID, "username": req.Username})
}

// ListGroups handles GET /groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.ListGroupsForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{Group: g, Channel: g.Channel()})
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}
