package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the settings used for the public share
// surface. A caller without a valid secret can do nothing there but guess
// one, so the ceiling is sized for a human workflow, not an API client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

const (
	pruneThreshold = 10000
	idleExpiry     = 10 * time.Minute
)

// limiter tracks one token bucket per key. Everything lives behind a single
// mutex; the critical section is a handful of float ops and the share surface
// is low-volume.
type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// take refills the key's bucket for the time elapsed since its last request,
// then spends one token. On an empty bucket it reports how many whole seconds
// until a token exists again.
func (l *limiter) take(key string) (ok bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, found := l.buckets[key]
	if !found {
		if len(l.buckets) >= pruneThreshold {
			l.prune(now)
		}
		b = &bucket{tokens: float64(l.cfg.BurstSize)}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.seen).Seconds() * l.cfg.RequestsPerSecond
		if full := float64(l.cfg.BurstSize); b.tokens > full {
			b.tokens = full
		}
	}
	b.seen = now

	if b.tokens < 1 {
		if l.cfg.RequestsPerSecond <= 0 {
			return false, 1
		}
		return false, int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
	}
	b.tokens--
	return true, 0
}

// prune drops buckets idle long enough to have refilled completely. Called
// with the lock held, and only when the map has grown past the threshold, so
// a scanner rotating source addresses cannot grow it without bound.
func (l *limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.seen) > idleExpiry {
			delete(l.buckets, key)
		}
	}
}

// RateLimit throttles by client IP. It fronts both route groups but exists
// for the share endpoints: presented secrets are guessable only by brute
// force, and pricing attempts per IP makes that impractical without ever
// inspecting the request body.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter := lim.take(c.RealIP())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
