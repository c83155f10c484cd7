package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scuolanet/auth-api/internal/models"
	"github.com/scuolanet/auth-api/internal/repository"
	"github.com/scuolanet/auth-api/internal/service"
	appErrors "github.com/scuolanet/auth-api/pkg/errors"
	"github.com/scuolanet/auth-api/pkg/response"
)

// ContextUserKey is the gin context key storing the access claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid bearer access token. When a
// cache is supplied, tokens denylisted at logout are rejected for their
// remaining lifetime.
func JWT(authService *service.AuthService, cache *repository.CacheRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.Authorize(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		if cache != nil && cache.IsDenied(c.Request.Context(), claims.ID) {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, ""))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// Claims extracts the access claims stored by the JWT middleware.
func Claims(c *gin.Context) (*models.AccessClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.AccessClaims)
	return claims, ok
}
