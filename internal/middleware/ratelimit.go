package middleware

import (
	"fmt"
	"time"

	"github.com/communekit/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitMax    = 50
	rateLimitWindow = time.Second
)

// RateLimit enforces a per-second request cap for anonymous clients, keyed
// by IP. Authenticated traffic passes through.
func RateLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("ck:rate_limit:%s:%d", ip, time.Now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > rateLimitMax {
			response.TooManyRequests(c)
			return
		}

		c.Next()
	}
}
