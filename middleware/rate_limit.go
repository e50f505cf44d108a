package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per client IP in fixed windows that start at
// each client's first request.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	rate    int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		rate:    rate,
		period:  period,
		now:     time.Now,
	}
}

// Allow records one request from key and reports whether it is within the
// limit, plus how long until the key's window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		l.sweep(now)
		w = &window{start: now}
		l.windows[key] = w
	}

	retryAfter := w.start.Add(l.period).Sub(now)
	if w.count >= l.rate {
		return false, retryAfter
	}
	w.count++
	return true, retryAfter
}

// sweep drops expired windows so idle clients do not accumulate.
func (l *RateLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.period {
			delete(l.windows, key)
		}
	}
}

// RateLimit limits requests per client IP. A non-positive rate disables it.
func RateLimit(rate int, period time.Duration) gin.HandlerFunc {
	if rate <= 0 || period <= 0 {
		return RateLimitWith(nil)
	}
	return RateLimitWith(NewRateLimiter(rate, period))
}

// RateLimitWith charges requests to a limiter that may be shared with other
// surfaces. A nil limiter disables the check.
func RateLimitWith(limiter *RateLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ok, retryAfter := limiter.Allow(clientIP)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", clientIP)

			seconds := int(retryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
