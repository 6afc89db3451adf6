package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ugc-studio/internal/client"
	"ugc-studio/internal/config"
	"ugc-studio/internal/metrics"
	"ugc-studio/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const tooManyRequests = "Too many requests, slow down."

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per session id, or per client IP when the
// request carries no session.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	enabled  bool
	now      func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:    burst,
		enabled:  cfg.Enabled && cfg.RequestsPerMinute > 0,
		now:      time.Now,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter.AllowN(v.lastSeen, 1)
}

// Middleware rejects requests over the budget with 429 and a plain text body.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.enabled {
			c.Next()
			return
		}

		key := c.GetHeader(client.HeaderSessionID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.allow(key) {
			metrics.RateLimited.Inc()
			logger.Warnf("Rate limit exceeded for %s", key)
			c.Header("Retry-After", "1")
			c.String(http.StatusTooManyRequests, "%s", tooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Cleanup forgets visitors idle for longer than idle.
func (l *RateLimiter) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if !l.enabled || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(interval)
		}
	}
}
