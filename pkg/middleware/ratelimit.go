package middleware

import (
	"fmt"
	"time"

	"taskplane/pkg/config"
	"taskplane/pkg/errutil"
	"taskplane/pkg/rediskey"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit enforces a fixed-window request budget per principal backed by
// Redis INCR + EXPIRE. Requests from unauthenticated paths fall back to the
// client address. A nil client or a Redis outage fails open: throttling is
// protection, not a correctness guarantee.
func RateLimit(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.RateLimit.SkipPaths))
	for _, p := range cfg.RateLimit.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if rdb == nil || !cfg.RateLimit.Enabled {
			c.Next()
			return
		}
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		subject := Principal(c)
		if subject == "" {
			subject = c.ClientIP()
		}

		window := time.Now().Unix() / int64(cfg.RateLimit.Window.Seconds())
		key := rediskey.BuildRateLimitKey(subject, window)

		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			zap.L().Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			_ = rdb.Expire(c.Request.Context(), key, cfg.RateLimit.Window).Err()
		}

		if count > int64(cfg.RateLimit.Requests) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(cfg.RateLimit.Window.Seconds())))
			c.AbortWithStatusJSON(429, gin.H{"error": gin.H{
				"code":    errutil.StatusTooManyRequests,
				"message": "rate limit exceeded",
			}})
			return
		}

		c.Next()
	}
}
