package middleware

import (
	"errors"
	"strings"

	"go_maintenance/internal/auth"
	"go_maintenance/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AuthRequired
const (
	KeyUID      = "uid"
	KeyUsername = "username"
	KeyRole     = "role"
)

// AuthRequired is a middleware that validates JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		// Check Bearer prefix
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			}
			c.Abort()
			return
		}

		c.Set(KeyUID, claims.UID)
		c.Set(KeyUsername, claims.Username)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

// RequireRole rejects callers whose role does not satisfy allowed
func RequireRole(allowed func(role string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowed(c.GetString(KeyRole)) {
			httpx.FailErr(c, httpx.ErrForbidden("insufficient role for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
