package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/response"
)

// LevelGate checks the requested level (path parameter "level", else query
// "level") against the session's level and accessible levels. Requests that
// name no level pass through.
func LevelGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("level")
		if raw == "" {
			raw = c.Query("level")
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.Next()
			return
		}

		level, err := strconv.Atoi(raw)
		if err != nil || level < 1 {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "level must be a positive integer"))
			return
		}

		claims := CurrentClaims(c)
		if claims == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if !claims.CanAccessLevel(level) {
			response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, "access denied to this level"))
			return
		}
		c.Next()
	}
}
