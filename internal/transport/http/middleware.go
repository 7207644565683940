package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/service"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

const contextKeyUserID = "userID"
const contextKeyEmail = "email"
const contextKeyRole = "role"

// RequireAuth verifies the bearer access token and stores the caller's
// identity in the gin context for downstream handlers (spec.md §4.11).
func RequireAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			RespondError(c, apierrors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			RespondError(c, err)
			c.Abort()
			return
		}

		c.Set(contextKeyUserID, claims.Subject)
		c.Set(contextKeyEmail, claims.Email)
		c.Set(contextKeyRole, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated caller's id, set by RequireAuth.
func UserID(c *gin.Context) string {
	v, _ := c.Get(contextKeyUserID)
	s, _ := v.(string)
	return s
}

// RequireFeature blocks the request unless the caller's role grants the
// named feature permission (spec.md §4.1, §4.3).
func RequireFeature(authz *service.Authz, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := authz.IsFeatureAllowed(c.Request.Context(), UserID(c), feature)
		if err != nil {
			RespondError(c, err)
			c.Abort()
			return
		}
		if !allowed {
			RespondError(c, apierrors.NewPermissionError("access", feature))
			c.Abort()
			return
		}
		c.Next()
	}
}
