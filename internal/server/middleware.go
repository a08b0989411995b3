package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creditledger/internal/observability/context"
)

// Identity is established upstream; the caller forwards the validated user id.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	contextUserIDKey   = "user_id"
	contextUserRoleKey = "user_role"
)

func IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextUserRoleKey, strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

func roleFromContext(c *gin.Context) string {
	return c.GetString(contextUserRoleKey)
}
