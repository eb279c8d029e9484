package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/h2linker/sendqueue/internal/utils"
)

// UserIdMiddleware reads the caller identity forwarded by the gateway.
// With required set, requests without one are rejected.
func UserIdMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := ""
		for _, header := range utils.UserIdHeaders {
			if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
				userId = value
				break
			}
		}

		if required && userId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing user id",
			})
			c.Abort()
			return
		}

		// Store in gin context for later use
		c.Set("UserId", userId)
		c.Next()
	}
}
