package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskpulse/pkg/errors"
	"github.com/charlesng35/taskpulse/pkg/response"
)

// ErrRateLimited is returned once a client exhausts its window.
var ErrRateLimited = errors.New("RATE_LIMITED", "Too many requests", 429)

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// RateLimiter counts requests per (client IP, route) in fixed windows. Expired windows
// are pruned on access, so no background goroutine is needed.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	counters  map[string]*windowCounter
	lastPrune time.Time
}

// NewRateLimiter builds a limiter allowing maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:      maxRequests,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*windowCounter),
	}
}

// Middleware returns the gin handler enforcing the limit.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.max <= 0 || l.window <= 0 {
			c.Next()
			return
		}

		count, resetIn := l.hit(c.ClientIP() + "|" + c.FullPath())

		remaining := l.max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > l.max {
			response.Abort(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) hit(key string) (int, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.window {
		for k, v := range l.counters {
			if now.After(v.windowEnd) {
				delete(l.counters, k)
			}
		}
		l.lastPrune = now
	}

	ct, ok := l.counters[key]
	if !ok || now.After(ct.windowEnd) {
		ct = &windowCounter{windowEnd: now.Add(l.window)}
		l.counters[key] = ct
	}
	ct.count++
	return ct.count, ct.windowEnd.Sub(now)
}
