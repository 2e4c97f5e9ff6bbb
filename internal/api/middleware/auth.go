package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crusadeos/backend/internal/shared/id"
)

// Authenticator resolves a bearer token to a user identity, sliding the
// session's expiry window. Satisfied by the session store.
type Authenticator interface {
	Authenticate(token string) (id.UserID, error)
}

// userIDKey is the gin context key the authenticated user is stored under.
const userIDKey = "auth.userID"

// Auth authenticates the Authorization bearer token and aborts the request
// before any handler runs when it is missing or invalid. A missing token is
// 401, a bad or expired one 403, matching what desktop clients key their
// session-expired handling on.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "authentication token required",
			})
			return
		}

		userID, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": "invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user for a request. Only valid behind
// the Auth middleware.
func UserID(c *gin.Context) id.UserID {
	v, _ := c.Get(userIDKey)
	userID, _ := v.(id.UserID)
	return userID
}

// BearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
