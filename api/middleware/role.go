package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/utils"
)

// RoleMiddleware only lets through users whose stored profile carries the role.
// It must run after UserIdMiddleware.
func RoleMiddleware(profiles repository.ProfileRepository, role enum.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetString("UserId")
		if userId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user id"})
			c.Abort()
			return
		}

		profile, err := profiles.GetById(c.Request.Context(), userId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if profile == nil || profile.Role != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			c.Abort()
			return
		}

		roles := []string{profile.Role.String()}
		c.Set("UserRoles", roles)
		customContext := *utils.GetContext(c.Request.Context())
		customContext.Roles = roles
		c.Request = c.Request.WithContext(utils.WithCustomContext(c.Request.Context(), &customContext))
		c.Next()
	}
}
