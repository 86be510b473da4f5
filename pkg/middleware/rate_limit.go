package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimit builds the limiter selected by cfg. The Redis limiter is used
// only when requested and a client is available.
func RateLimit(cfg config.RateLimitConfig, client *redis.Client) gin.HandlerFunc {
	if cfg.UseRedis && client != nil {
		return RedisRateLimitMiddleware(client, cfg.RPS, cfg.Burst, time.Duration(cfg.WindowSeconds)*time.Second)
	}
	return RateLimitMiddleware(cfg.RPS, cfg.Burst)
}

// limiterSet lazily creates one token bucket per caller key.
type limiterSet struct {
	rps   float64
	burst int
	m     sync.Map // map[string]*rate.Limiter
}

func (s *limiterSet) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

// RateLimitMiddleware enforces an in-memory token bucket per caller.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	set := &limiterSet{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !set.get(callerKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
