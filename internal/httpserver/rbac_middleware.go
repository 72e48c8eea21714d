package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubportal/pkg/rbac"
)

// RequirePermission rejects requests whose member role lacks the permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "member not authenticated"})
			c.Abort()
			return
		}

		r, ok := role.(string)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid role"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(r, permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}
