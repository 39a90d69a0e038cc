// Package ratelimit implements the per-client fixed-window request limiter
// that guards the /api routes.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"repairscribe/internal/apperr"
	"repairscribe/internal/logging"
)

// ErrTooManyRequests is returned once a client exhausts its window.
var ErrTooManyRequests = apperr.New(apperr.KindRateLimit, "Too many requests from this IP, please try again later.")

// Decision describes the state of one client's window after a hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter allows at most max hits per key inside each window.
type Limiter struct {
	store  Store
	window time.Duration
	max    int
	logger logging.Logger
}

func NewLimiter(store Store, window time.Duration, max int, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Limiter{store: store, window: window, max: max, logger: logger}
}

// Allow records a hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetIn, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max, ResetIn: l.window}, err
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Middleware limits requests by client IP. A failing store lets the request
// through and logs the failure.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()
		d, err := l.Allow(ctx, ip)
		if err != nil {
			l.logger.Warn(ctx, "rate limit store unavailable", "ip", ip, "error", err)
			c.Next()
			return
		}

		resetSecs := strconv.Itoa(int(math.Ceil(d.ResetIn.Seconds())))
		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", resetSecs)

		if !d.Allowed {
			h.Set("Retry-After", resetSecs)
			_ = c.Error(ErrTooManyRequests)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ErrTooManyRequests.Message})
			return
		}
		c.Next()
	}
}
