package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/apperr"
	"chat-server/internal/middleware"
	"chat-server/internal/repositories"
)

// Notifier pushes realtime events to connected users.
type Notifier interface {
	Unicast(username string, payload any) bool
	Broadcast(payload any) int
	Online() []string
}

// AccessChecker decides channel visibility.
type AccessChecker interface {
	CanAccess(ctx context.Context, username, channel string) (bool, error)
}

// Auditor records security-relevant actions.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, username *string)
}

func currentUser(c *gin.Context) string {
	return c.GetString(middleware.UsernameKey)
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

func emitAudit(c *gin.Context, audit Auditor, level, text string) {
	if audit == nil {
		return
	}
	var username *string
	if name := currentUser(c); name != "" {
		username = &name
	}
	audit.Emit(c.Request.Context(), level, text, requestID(c), username)
}

// translate maps repository sentinels onto coded errors.
func translate(err error) error {
	var appErr *apperr.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrUserNotFound):
		return apperr.NotFound("user not found")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperr.NotFound("message not found")
	case errors.Is(err, repositories.ErrRequestNotFound):
		return apperr.NotFound("friend request not found")
	case errors.Is(err, repositories.ErrGroupNotFound):
		return apperr.NotFound("group not found")
	case errors.Is(err, repositories.ErrUsernameTaken):
		return apperr.AlreadyExists("username already taken")
	case errors.Is(err, repositories.ErrDuplicateRequest):
		return apperr.AlreadyExists("friend request already pending")
	case errors.Is(err, repositories.ErrAlreadyMember):
		return apperr.AlreadyExists("user already in group")
	case errors.Is(err, repositories.ErrAlreadyFriends):
		return apperr.Conflict("users are already friends")
	default:
		return apperr.Internal("internal error", err)
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	err = translate(err)
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestID(c)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}
