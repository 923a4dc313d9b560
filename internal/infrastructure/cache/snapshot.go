package cache

import (
	"context"
	"sync"
	"time"
)

// Loader fetches a fresh value for a Snapshot
type Loader[T any] func(ctx context.Context) (T, error)

// Snapshot caches a single value for a TTL. Concurrent misses share one load.
type Snapshot[T any] struct {
	ttl    time.Duration
	load   Loader[T]
	now    func() time.Time
	mu     sync.Mutex
	value  T
	loaded time.Time
	valid  bool
}

// NewSnapshot creates a snapshot. A ttl <= 0 disables caching.
func NewSnapshot[T any](ttl time.Duration, load Loader[T]) *Snapshot[T] {
	return &Snapshot[T]{ttl: ttl, load: load, now: time.Now}
}

// Get returns the cached value or loads a new one. Load errors are returned
// and leave the previous value invalidated.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid && s.ttl > 0 && s.now().Sub(s.loaded) < s.ttl {
		return s.value, nil
	}

	v, err := s.load(ctx)
	if err != nil {
		s.valid = false
		var zero T
		return zero, err
	}
	s.value, s.loaded, s.valid = v, s.now(), true
	return v, nil
}

// Invalidate forces the next Get to load
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}
