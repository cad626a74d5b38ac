package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"project-review-server/models"
	"project-review-server/types"
)

const (
	userKey   = "user"
	userIDKey = "user_id"
	tokenKey  = "session_token"
)

// SessionResolver maps a session token back to its user
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, *types.Claims, bool)
}

// TokenFromRequest reads the session cookie first, then an "Authorization: Bearer" header
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return strings.TrimSpace(token)
	}
	return ""
}

// AuthMiddleware requires a valid session and sets the user in context
func AuthMiddleware(sessions SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, cookieName)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, no token"})
			c.Abort()
			return
		}

		user, _, ok := sessions.ResolveSession(c.Request.Context(), token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
			c.Abort()
			return
		}

		setSession(c, user, token)
		c.Next()
	}
}

// OptionalAuthMiddleware is like AuthMiddleware but lets anonymous requests through
func OptionalAuthMiddleware(sessions SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, cookieName)
		if token == "" {
			c.Next()
			return
		}
		if user, _, ok := sessions.ResolveSession(c.Request.Context(), token); ok {
			setSession(c, user, token)
		}
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebSocketAuthMiddleware also accepts the token as a query parameter, since browsers
// cannot set headers on a WebSocket upgrade
func WebSocketAuthMiddleware(sessions SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, cookieName)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			log.Printf("🔌 WebSocketAuthMiddleware: no token on upgrade from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, no token"})
			c.Abort()
			return
		}

		user, _, ok := sessions.ResolveSession(c.Request.Context(), token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
			c.Abort()
			return
		}

		setSession(c, user, token)
		c.Next()
	}
}

func setSession(c *gin.Context, user *models.User, token string) {
	c.Set(userKey, user)
	c.Set(userIDKey, user.ID)
	c.Set(tokenKey, token)
}

// CurrentUser returns the authenticated user, if any
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
