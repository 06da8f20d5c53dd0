package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lalith-99/panelchat/internal/auth"
)

// Context keys for storing claims in gin.Context.
const (
	ContextKeyUserID      = "user_id"
	ContextKeyDisplayName = "display_name"
)

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}
		if !authenticate(c, header, secret) {
			return
		}
		c.Next()
	}
}

// OptionalAuth lets anonymous requests through with no user in the context.
// A token that is present but invalid is still a 401: a client that meant
// to authenticate should not silently get the anonymous view.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header != "" && !authenticate(c, header, secret) {
			return
		}
		c.Next()
	}
}

// authenticate stores the claims on success and aborts with 401 otherwise.
func authenticate(c *gin.Context, header, secret string) bool {
	// Expected format: "Bearer eyJhbGciOi..."
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid authorization format, expected: Bearer <token>",
		})
		return false
	}

	claims, err := auth.ParseToken(strings.TrimSpace(parts[1]), secret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return false
	}

	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyDisplayName, claims.Name)
	return true
}

// GetUserID returns uuid.Nil for anonymous requests.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetDisplayName(c *gin.Context) string {
	val, exists := c.Get(ContextKeyDisplayName)
	if !exists {
		return ""
	}
	name, ok := val.(string)
	if !ok {
		return ""
	}
	return name
}
