// Package ratelimit implements a fixed-window request counter. A caller can
// burst up to twice the limit across a window boundary; that is accepted for
// coarse admission control.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
)

const keyPrefix = "rate_limit:"

// Result is the outcome of a single Check
type Result struct {
	Allowed   bool
	Remaining int64
	// Reset is the time left until the current window closes
	Reset time.Duration
}

// Limiter counts requests per identifier in fixed windows
type Limiter struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Limiter backed by s
func New(s store.Store, logger *slog.Logger) *Limiter {
	return &Limiter{store: s, logger: logger}
}

// Key returns the namespaced store key for an identifier
func Key(identifier string) string {
	return keyPrefix + identifier
}

// Check counts one request for identifier. When the store is unreachable
// the request is allowed with a full quota.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int64, window time.Duration) Result {
	count, ttl, err := l.store.Incr(ctx, Key(identifier), window)
	if err != nil {
		l.logger.Warn("Rate limit check failed, allowing request",
			slog.String("identifier", identifier),
			slog.Any("error", err),
		)
		return Result{Allowed: true, Remaining: limit, Reset: window}
	}

	// a counter that lost its TTL would never reset; treat it as a fresh window
	if ttl < 0 {
		ttl = window
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		Reset:     ttl,
	}
}
