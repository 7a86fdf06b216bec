package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStore_ListFIFO(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.RPush(ctx, "q", "a", "b"))
	require.NoError(t, s.RPush(ctx, "q", "c"))

	n, err := s.LLen(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"a", "b", "c"} {
		got, err := s.BLPop(ctx, 10*time.Millisecond, "q")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = s.BLPop(ctx, 10*time.Millisecond, "q")
	assert.ErrorIs(t, err, store.ErrNil)
}

func TestStore_BLPopWakesOnPush(t *testing.T) {
	ctx := context.Background()
	s := New()

	done := make(chan string, 1)
	go func() {
		v, _ := s.BLPop(ctx, time.Second, "q")
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.RPush(ctx, "q", "job"))

	select {
	case v := <-done:
		assert.Equal(t, "job", v)
	case <-time.After(time.Second):
		t.Fatal("BLPop did not wake up after push")
	}
}

func TestStore_LRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.RPush(ctx, "l", "0", "1", "2", "3"))

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{name: "full range", start: 0, stop: -1, want: []string{"0", "1", "2", "3"}},
		{name: "middle", start: 1, stop: 2, want: []string{"1", "2"}},
		{name: "stop past end", start: 2, stop: 100, want: []string{"2", "3"}},
		{name: "empty", start: 3, stop: 1, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.LRange(ctx, "l", tt.start, tt.stop)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_Sets(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SAdd(ctx, "set", "a"))
	require.NoError(t, s.SAdd(ctx, "set", "a"))
	require.NoError(t, s.SAdd(ctx, "set", "b"))

	n, err := s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SRem(ctx, "set", "a"))
	n, err = s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_IncrAppliesTTLOnCreate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))

	count, ttl, err := s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 40*time.Second, ttl)

	clock.Advance(40 * time.Second)
	count, _, err = s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_SetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))

	ok, err := s.SetNX(ctx, "k", "one", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "two", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := s.CompareAndDelete(ctx, "k", "two")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.CompareAndDelete(ctx, "k", "one")
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = s.SetNX(ctx, "k", "three", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, err = s.SetNX(ctx, "k", "four", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key should be replaceable")
}

func TestStore_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	msgs, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, "events", "hello"))
	require.NoError(t, s.Publish(ctx, "other", "ignored"))

	select {
	case m := <-msgs:
		assert.Equal(t, "hello", m)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	_, open := <-msgs
	assert.False(t, open)
}
