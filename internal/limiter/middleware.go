package limiter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware rejects requests over limit per window and client IP with 429.
// When Redis fails the request goes through.
func Middleware(manager *Manager, scope string, limit int, window time.Duration, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + scope + ":" + c.ClientIP()
		allowed, err := manager.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Error("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
