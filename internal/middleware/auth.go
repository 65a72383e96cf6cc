package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	pkgjwt "github.com/reservo/chat-service/pkg/jwt"
	"github.com/reservo/chat-service/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthMiddleware validates bearer tokens in-process.
type AuthMiddleware struct {
	tokens *pkgjwt.Manager
}

func NewAuthMiddleware(tokens *pkgjwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth validates the bearer token and stores the caller's identity
// in the gin context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.tokens.Validate(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

// CallerID returns the authenticated user id stored by RequireAuth.
func CallerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
