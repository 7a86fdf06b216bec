// Package memory provides an in-process store.Store used by tests and by
// local runs without Redis.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
)

var _ store.Store = (*Store)(nil)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used for key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a mutex-guarded implementation of store.Store.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	lists       map[string][]string
	sets        map[string]map[string]struct{}
	values      map[string]entry
	subscribers map[string][]chan string
	pushed      chan struct{}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		lists:       make(map[string][]string),
		sets:        make(map[string]map[string]struct{}),
		values:      make(map[string]entry),
		subscribers: make(map[string][]chan string),
		pushed:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[key] = append(s.lists[key], values...)
	close(s.pushed)
	s.pushed = make(chan struct{})
	return nil
}

func (s *Store) BLPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if list := s.lists[key]; len(list) > 0 {
			head := list[0]
			if len(list) == 1 {
				delete(s.lists, key)
			} else {
				s.lists[key] = list[1:]
			}
			s.mu.Unlock()
			return head, nil
		}
		wake := s.pushed
		s.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return "", store.ErrNil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

// LRange follows Redis index semantics, including negative offsets.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}, nil
	}

	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *Store) SAdd(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Store) SRem(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

func (s *Store) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[key])), nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := s.lists[key]; ok {
			delete(s.lists, key)
			removed++
		}
		if _, ok := s.sets[key]; ok {
			delete(s.sets, key)
			removed++
		}
		if _, ok := s.liveValue(key); ok {
			delete(s.values, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveValue(key)
	if !ok {
		e = entry{value: "0"}
		if ttl > 0 {
			e.expires = s.now().Add(ttl)
		}
	}

	count, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	count++
	e.value = strconv.FormatInt(count, 10)
	s.values[key] = e

	remaining := time.Duration(-1)
	if !e.expires.IsZero() {
		remaining = e.expires.Sub(s.now())
	}
	return count, remaining, nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveValue(key); ok {
		return false, nil
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.values[key] = e
	return true, nil
}

func (s *Store) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveValue(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *Store) Publish(_ context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers[channel] {
		select {
		case ch <- message:
		default:
			// slow subscriber, drop like Redis would for a disconnected client
		}
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 64)

	s.mu.Lock()
	s.subscribers[channel] = append(s.subscribers[channel], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		subs := s.subscribers[channel]
		for i, c := range subs {
			if c == ch {
				s.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

// liveValue returns the entry at key if it exists and has not expired.
// Expired entries are evicted. Callers must hold s.mu.
func (s *Store) liveValue(key string) (entry, bool) {
	e, ok := s.values[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.values, key)
		return entry{}, false
	}
	return e, true
}
