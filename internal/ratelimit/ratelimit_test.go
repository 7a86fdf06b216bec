package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
	"github.com/cuongbtq/cashback-jobs/internal/store/memory"
	"github.com/stretchr/testify/assert"
)

type downStore struct{ store.Store }

func (downStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := New(memory.New(memory.WithClock(c.Now)), discardLogger())

	const limit = 5
	window := time.Minute

	for i := int64(1); i <= limit; i++ {
		res := l.Check(ctx, "ip:10.0.0.1", limit, window)
		assert.True(t, res.Allowed, "call %d should be allowed", i)
		assert.Equal(t, limit-i, res.Remaining)
	}

	res := l.Check(ctx, "ip:10.0.0.1", limit, window)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, window, res.Reset)

	// other identifiers have their own window
	assert.True(t, l.Check(ctx, "ip:10.0.0.2", limit, window).Allowed)

	c.Advance(window)

	res = l.Check(ctx, "ip:10.0.0.1", limit, window)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(limit-1), res.Remaining)
}

func TestLimiter_ResetCountsDown(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := New(memory.New(memory.WithClock(c.Now)), discardLogger())

	l.Check(ctx, "user:7", 10, time.Minute)
	c.Advance(45 * time.Second)

	res := l.Check(ctx, "user:7", 10, time.Minute)
	assert.Equal(t, 15*time.Second, res.Reset)
}

func TestLimiter_FailOpen(t *testing.T) {
	l := New(downStore{}, discardLogger())

	res := l.Check(context.Background(), "ip:10.0.0.1", 3, 30*time.Second)

	assert.Equal(t, Result{Allowed: true, Remaining: 3, Reset: 30 * time.Second}, res)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rate_limit:ip:1.2.3.4", Key("ip:1.2.3.4"))
}
