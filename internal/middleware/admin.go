package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware guards control endpoints. A request is admitted with an
// X-API-Key matching the configured bcrypt hash, or a Bearer token carrying
// the admin role.
type AdminMiddleware struct {
	apiKeyHash []byte
	auth       *AuthMiddleware
}

// NewAdminMiddleware creates admin middleware. An empty hash disables API key
// access; a nil or disabled auth disables token access.
func NewAdminMiddleware(apiKeyHash string, auth *AuthMiddleware) *AdminMiddleware {
	return &AdminMiddleware{
		apiKeyHash: []byte(apiKeyHash),
		auth:       auth,
	}
}

// RequireAdminAuth middleware validates admin credentials.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-Key"); key != "" && am.ValidateAdminKey(key) {
			c.Set("admin_subject", "api_key")
			c.Next()
			return
		}

		if token, ok := bearerToken(c.GetHeader("Authorization")); ok && am.auth != nil {
			claims, err := am.auth.ValidateToken(token)
			if err == nil && claims.Role == RoleAdmin {
				c.Set("admin_subject", claims.Subject)
				c.Next()
				return
			}
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key or token required for this endpoint",
		})
	}
}

// ValidateAdminKey compares key against the configured bcrypt hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if len(am.apiKeyHash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.apiKeyHash, []byte(key)) == nil
}

// bearerToken extracts the token from an Authorization header. The scheme is
// matched case-insensitively as per RFC 6750.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
