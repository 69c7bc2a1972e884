package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/identity"
)

// IdentityKey is the gin context key holding the caller's *identity.Identity.
const IdentityKey = "identity"

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by WebSocket clients.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}

func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c)
		if tokenString == "" {
			c.JSON(401, gin.H{"success": false, "error": "Authorization header or token query parameter required"})
			c.Abort()
			return
		}

		id, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(401, gin.H{"success": false, "error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(IdentityKey, id)
		c.Set("userId", id.UserID)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthMiddleware, or nil.
func CurrentIdentity(c *gin.Context) *identity.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*identity.Identity)
	return id
}
