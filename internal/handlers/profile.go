package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
)

// ProfileHandler serves profile reads and updates.
type ProfileHandler struct {
	users    repositories.UserRepository
	notifier Notifier
	adminTag string
	audit    Auditor
	logger   *zap.Logger
}

// NewProfileHandler builds a ProfileHandler. An empty adminTag disables
// self-promotion through the bio.
func NewProfileHandler(users repositories.UserRepository, notifier Notifier, adminTag string, audit Auditor, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, notifier: notifier, adminTag: adminTag, audit: audit, logger: logger}
}

// GetProfile handles GET /profile/:username.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	username := c.Param("username")
	profile, err := h.users.GetProfile(c.Request.Context(), username)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "profile": profile})
}

type profileRequest struct {
	Bio        string `json:"bio"`
	AvatarURL  string `json:"avatar_url"`
	Status     string `json:"status"`
	Theme      string `json:"theme"`
	Wallpaper  string `json:"wallpaper"`
	RealName   string `json:"real_name"`
	Location   string `json:"location"`
	BirthDate  string `json:"birth_date"`
	SocialLink string `json:"social_link"`
}

// UpdateProfile handles PUT /profile and announces the change to everyone
// online.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := currentUser(c)

	profile := models.Profile{
		Bio:        req.Bio,
		AvatarURL:  req.AvatarURL,
		Status:     req.Status,
		Theme:      req.Theme,
		Wallpaper:  req.Wallpaper,
		RealName:   req.RealName,
		Location:   req.Location,
		BirthDate:  req.BirthDate,
		SocialLink: req.SocialLink,
	}
	if h.adminTag != "" && strings.Contains(profile.Bio, h.adminTag) {
		profile.Bio = strings.TrimSpace(strings.ReplaceAll(profile.Bio, h.adminTag, ""))
		profile.IsAdmin = true
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), username, profile)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if profile.IsAdmin {
		emitAudit(c, h.audit, telemetry.LevelSecurity, "admin granted through profile tag")
	}

	h.notifier.Broadcast(models.StatusUpdateEvent{
		Type:      models.OutStatusUpdate,
		Username:  username,
		Status:    updated.Status,
		AvatarURL: updated.AvatarURL,
	})
	c.JSON(http.StatusOK, gin.H{"username": username, "profile": updated})
}
