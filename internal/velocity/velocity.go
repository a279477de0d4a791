// Package velocity tracks how fast each tenant submits statements.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// ErrLimitExceeded is returned by Allow once a tenant is over its limit
// for the current window.
var ErrLimitExceeded = errors.New("submission limit exceeded")

// counterKey is the cache counter holding submissions per window.
const counterKey = "statement_submissions"

// Limiter counts submissions per tenant over a fixed window.
type Limiter struct {
	cache  domain.Cache
	limit  int
	window time.Duration
}

// NewLimiter creates a limiter allowing limit submissions per window.
// A nil cache or a limit of zero disables it.
func NewLimiter(cache domain.Cache, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		cache:  cache,
		limit:  limit,
		window: window,
	}
}

// Enabled reports whether the limiter counts anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cache != nil && l.limit > 0
}

// Allow records one submission and returns the count for the current window.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (int64, error) {
	if !l.Enabled() {
		return 0, nil
	}
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	n, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, l.window)
	if err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	if n > int64(l.limit) {
		return n, ErrLimitExceeded
	}
	return n, nil
}

// RetryAfter is the number of seconds a limited client should wait.
func (l *Limiter) RetryAfter() int {
	return int(l.window / time.Second)
}
