package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/card-market-api/internal/models"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
	"github.com/noah-isme/card-market-api/pkg/response"
)

// RequireRoles admits requests whose claims carry at least one of roles.
// It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
	}
}
