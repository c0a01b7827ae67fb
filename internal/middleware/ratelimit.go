package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/stemsi/exstem-sessions/internal/response"
)

const (
	visitorIdle     = 3 * time.Minute
	cleanupInterval = time.Minute
)

// KeyFunc picks the bucket a request is charged against.
type KeyFunc func(c *gin.Context) string

// RateLimiter keeps one token bucket per key (session id, client IP, ...).
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	key         KeyFunc
	lastCleanup time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond events per key with the given burst.
func NewRateLimiter(perSecond float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ByClientIP
	}
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Limit(perSecond),
		burst:       burst,
		key:         key,
		lastCleanup: time.Now(),
	}
}

// ByClientIP charges requests to the caller's IP.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByParam charges requests to a route parameter, falling back to the client IP.
func ByParam(name string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.Param(name); v != "" {
			return name + ":" + v
		}
		return c.ClientIP()
	}
}

// Allow reports whether one more event for key fits in its bucket.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) >= cleanupInterval {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware returns a Gin middleware that rejects requests over the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.key(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
