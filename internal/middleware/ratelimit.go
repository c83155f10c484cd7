package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scuolanet/auth-api/internal/repository"
	appErrors "github.com/scuolanet/auth-api/pkg/errors"
	"github.com/scuolanet/auth-api/pkg/response"
)

// RateLimit applies a fixed-window counter per client IP for one route.
// The window lives in Redis so limits hold across replicas. When Redis is
// unreachable the limiter fails open; account lockout still bounds
// credential guessing.
func RateLimit(cache *repository.CacheRepository, logger *zap.Logger, route string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil || max <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", route, c.ClientIP())
		count, err := cache.IncrWindow(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limit counter failed", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}

		if count > int64(max) {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
