package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/metrics"
	"github.com/feedgate-io/feedgate/ports"
)

// LimitResult is the limiter's verdict for one request.
type LimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window rate limiter over the shared store, so the limit
// holds across all instances. Fixed windows admit a burst of up to twice the
// limit across a window boundary; that is an accepted trade for abuse
// deterrence, not billing-grade accounting.
type Limiter struct {
	store  ports.Store
	window time.Duration
	max    int
	log    *zap.Logger
}

// NewLimiter creates a limiter allowing max requests per window per key.
func NewLimiter(store ports.Store, window time.Duration, max int, log *zap.Logger) *Limiter {
	return &Limiter{store: store, window: window, max: max, log: log}
}

// Allow records a request for the key and reports whether it is within the
// window budget. On store failure the limiter fails OPEN: rate limiting is
// defense in depth and a cache outage must not become a full outage.
func (l *Limiter) Allow(ctx context.Context, key string) LimitResult {
	windowMs := l.window.Milliseconds()
	windowID := time.Now().UnixMilli() / windowMs
	resetAt := time.UnixMilli((windowID + 1) * windowMs)

	storeKey := fmt.Sprintf("ratelimit:%s:%d", key, windowID)
	count, err := l.store.IncrWithTTL(ctx, storeKey, l.window)
	if err != nil {
		metrics.RateLimitFailOpen.Inc()
		l.log.Warn("rate limit degraded, failing open", zap.String("key", key), zap.Error(err))
		return LimitResult{Allowed: true, Limit: l.max, Remaining: l.max, ResetAt: resetAt}
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(l.max) {
		metrics.RateLimitRejections.Inc()
		return LimitResult{Allowed: false, Limit: l.max, Remaining: 0, ResetAt: resetAt}
	}

	return LimitResult{Allowed: true, Limit: l.max, Remaining: remaining, ResetAt: resetAt}
}

// Reset clears the key's counter for the current window. Best effort: a
// store failure only means the budget keeps counting.
func (l *Limiter) Reset(ctx context.Context, key string) {
	windowID := time.Now().UnixMilli() / l.window.Milliseconds()
	if _, err := l.store.Delete(ctx, fmt.Sprintf("ratelimit:%s:%d", key, windowID)); err != nil {
		l.log.Debug("rate limit reset failed", zap.String("key", key), zap.Error(err))
	}
}
