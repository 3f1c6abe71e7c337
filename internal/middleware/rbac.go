package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/response"
)

// RequireRoles admits only sessions whose role is one of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, "access denied for role "+string(claims.Role)))
			return
		}
		c.Next()
	}
}

// RequireAdmin is shorthand for RequireRoles(models.RoleAdmin).
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

// RequireStudent is shorthand for RequireRoles(models.RoleStudent).
func RequireStudent() gin.HandlerFunc {
	return RequireRoles(models.RoleStudent)
}
