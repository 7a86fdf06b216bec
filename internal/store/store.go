// Package store defines the key-value primitives the queue, lock and
// rate-limit layers are built on. The production implementation lives in
// shared/redis; memory.Store is an in-process fake with the same semantics.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNil is returned when a blocking pop times out without a value
	ErrNil = errors.New("store: nil")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store: closed")
)

// Store is the set of atomic primitives required from the backing service
type Store interface {
	// RPush appends values to the tail of the list at key
	RPush(ctx context.Context, key string, values ...string) error

	// BLPop pops the head of the list at key, waiting up to timeout.
	// Returns ErrNil when nothing arrived in time.
	BLPop(ctx context.Context, timeout time.Duration, key string) (string, error)

	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SCard(ctx context.Context, key string) (int64, error)

	// Del removes keys and returns how many existed
	Del(ctx context.Context, keys ...string) (int64, error)

	// Incr increments the counter at key. The ttl is applied only when the
	// increment created the key. Returns the new count and the remaining TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// SetNX sets key to value with ttl only if key is absent
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if it currently holds value
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	Publish(ctx context.Context, channel, message string) error

	// Subscribe delivers messages published on channel until ctx is done.
	// The returned channel is closed when the subscription ends.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)

	Ping(ctx context.Context) error
}
