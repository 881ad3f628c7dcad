package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

const (
	UsernameKey  = "username"
	RequestIDKey = "requestID"
)

// TokenValidator resolves a bearer token to a username.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AccountLookup loads the account a token was issued for.
type AccountLookup interface {
	GetUser(ctx context.Context, username string) (models.User, error)
}

// ErrUnauthenticated covers bad tokens and tokens whose account is gone.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator validates a token and checks that its account still exists,
// so a banned user's unexpired token stops working.
type Authenticator struct {
	tokens TokenValidator
	users  AccountLookup
}

func NewAuthenticator(tokens TokenValidator, users AccountLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate returns the username for token. Any error other than
// ErrUnauthenticated is a store failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	username, err := a.tokens.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if _, err := a.users.GetUser(ctx, username); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", fmt.Errorf("%w: account %s no longer exists", ErrUnauthenticated, username)
		}
		return "", fmt.Errorf("lookup account: %w", err)
	}
	return username, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates the Authorization header and stores the username.
func AuthMiddleware(authn *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		username, err := authn.Authenticate(c.Request.Context(), token)
		if errors.Is(err, ErrUnauthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(UsernameKey, username)
		c.Next()
	}
}

// RequestID propagates X-Request-Id or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDKey, rid)
		c.Header("X-Request-Id", rid)
		c.Next()
	}
}
