// Package lock implements an advisory distributed lock on top of the store's
// set-if-absent primitive. Each holder writes a random token as the value and
// release deletes the key only while that token is still present.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
	"github.com/google/uuid"
)

const keyPrefix = "lock:"

var (
	// ErrNotAcquired is returned when another holder owns the lock or the
	// store could not be reached
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrInvalidTTL is returned for non-positive TTLs
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

// Handle identifies a held lock
type Handle struct {
	Name  string
	Key   string
	Token string
	TTL   time.Duration
}

// Locker acquires and releases named locks
type Locker struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Locker backed by s
func New(s store.Store, logger *slog.Logger) *Locker {
	return &Locker{store: s, logger: logger}
}

// Key returns the namespaced store key for a lock name
func Key(name string) string {
	return keyPrefix + name
}

// Acquire tries once to take the lock. It never waits: ok is false when the
// lock is held elsewhere. A store failure is returned as an error.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Handle, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}

	h := &Handle{
		Name:  name,
		Key:   Key(name),
		Token: uuid.NewString(),
		TTL:   ttl,
	}

	ok, err := l.store.SetNX(ctx, h.Key, h.Token, ttl)
	if err != nil {
		l.logger.Error("Failed to acquire lock",
			slog.String("lock", name),
			slog.Any("error", err),
		)
		return nil, false, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		l.logger.Debug("Lock held by another owner",
			slog.String("lock", name),
		)
		return nil, false, nil
	}

	return h, true, nil
}

// Release deletes the lock if h still owns it. It reports whether the key
// was removed; false means the TTL expired and someone else may hold it now.
// Store errors are logged, never returned: the TTL bounds the damage.
func (l *Locker) Release(ctx context.Context, h *Handle) bool {
	if h == nil {
		return false
	}

	deleted, err := l.store.CompareAndDelete(ctx, h.Key, h.Token)
	if err != nil {
		l.logger.Warn("Failed to release lock, relying on TTL",
			slog.String("lock", h.Name),
			slog.Duration("ttl", h.TTL),
			slog.Any("error", err),
		)
		return false
	}
	if !deleted {
		l.logger.Warn("Lock expired before release",
			slog.String("lock", h.Name),
			slog.Duration("ttl", h.TTL),
		)
	}
	return deleted
}

// ForceRelease deletes the lock regardless of holder. Meant for operators
// clearing a lock left by a crashed process.
func (l *Locker) ForceRelease(ctx context.Context, name string) error {
	if _, err := l.store.Del(ctx, Key(name)); err != nil {
		return fmt.Errorf("force release %s: %w", name, err)
	}
	return nil
}

// WithLock runs fn while holding the named lock. Contention and store
// failures both return ErrNotAcquired without running fn. The lock is
// released on every exit path, including panics in fn.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, ok, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAcquired, err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer l.Release(context.WithoutCancel(ctx), h)

	return fn(ctx)
}
