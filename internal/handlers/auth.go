package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/apperr"
	"chat-server/internal/auth"
	"chat-server/internal/models"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
)

const (
	minPasswordLength = 6
	newcomerBio       = "Newcomer"
)

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	IssueToken(username string) (string, error)
}

// AuthHandler serves registration and login.
type AuthHandler struct {
	users           repositories.UserRepository
	tokens          TokenIssuer
	bootstrapAdmins map[string]struct{}
	audit           Auditor
	logger          *zap.Logger
}

func NewAuthHandler(users repositories.UserRepository, tokens TokenIssuer, bootstrapAdmins []string, audit Auditor, logger *zap.Logger) *AuthHandler {
	admins := make(map[string]struct{}, len(bootstrapAdmins))
	for _, name := range bootstrapAdmins {
		admins[strings.TrimSpace(name)] = struct{}{}
	}
	return &AuthHandler{users: users, tokens: tokens, bootstrapAdmins: admins, audit: audit, logger: logger}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	RealName  string `json:"real_name"`
	BirthDate string `json:"birth_date"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !models.ValidUsername(req.Username) {
		respondError(c, h.logger, apperr.InvalidArg("username must be 2-32 letters, digits, '.', '_' or '-'"))
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(c, h.logger, apperr.InvalidArg("password too short"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	_, admin := h.bootstrapAdmins[req.Username]
	profile := models.Profile{
		Bio:       newcomerBio,
		RealName:  req.RealName,
		BirthDate: req.BirthDate,
		IsAdmin:   admin,
	}
	if err := h.users.CreateUser(c.Request.Context(), req.Username, hash, profile); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if admin {
		if err := h.users.SetAdmin(c.Request.Context(), req.Username, true); err != nil {
			respondError(c, h.logger, err)
			return
		}
		if h.audit != nil {
			name := req.Username
			h.audit.Emit(c.Request.Context(), telemetry.LevelSecurity, "bootstrap admin registered", requestID(c), &name)
		}
	}

	h.logger.Info("user registered", zap.String("username", req.Username), zap.Bool("admin", admin))
	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "profile": profile})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /login and returns a bearer token with the profile.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), req.Username)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		respondError(c, h.logger, err)
		return
	}
	ok := false
	if err == nil {
		ok, err = auth.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			h.logger.Warn("stored password hash unreadable", zap.String("username", req.Username), zap.Error(err))
		}
	}
	if !ok {
		emitAudit(c, h.audit, telemetry.LevelWarn, "login failed for "+req.Username)
		respondError(c, h.logger, apperr.Unauthorized("invalid username or password"))
		return
	}

	token, err := h.tokens.IssueToken(user.Username)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "username": user.Username, "profile": user.Profile})
}
