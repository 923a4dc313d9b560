package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *atomic.Int32) Loader[int] {
	return func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestSnapshot_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("serves cached value within ttl", func(t *testing.T) {
		var calls atomic.Int32
		s := NewSnapshot(time.Minute, countingLoader(&calls))

		v1, err := s.Get(ctx)
		require.NoError(t, err)
		v2, err := s.Get(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, v1)
		assert.Equal(t, 1, v2)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("reloads after ttl", func(t *testing.T) {
		var calls atomic.Int32
		s := NewSnapshot(time.Minute, countingLoader(&calls))
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		_, _ = s.Get(ctx)
		now = now.Add(2 * time.Minute)
		v, err := s.Get(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("zero ttl always loads", func(t *testing.T) {
		var calls atomic.Int32
		s := NewSnapshot(0, countingLoader(&calls))

		_, _ = s.Get(ctx)
		_, _ = s.Get(ctx)

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("load error is returned", func(t *testing.T) {
		boom := errors.New("db down")
		s := NewSnapshot(time.Minute, func(ctx context.Context) (string, error) { return "", boom })

		v, err := s.Get(ctx)

		assert.ErrorIs(t, err, boom)
		assert.Empty(t, v)
	})
}

func TestSnapshot_Invalidate(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot(time.Hour, countingLoader(&calls))

	_, _ = s.Get(context.Background())
	s.Invalidate()
	v, err := s.Get(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestLocalSettingsNotifier(t *testing.T) {
	n := NewLocalSettingsNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	done := make(chan error, 1)
	go func() { done <- n.Listen(ctx, func() { hits.Add(1) }) }()

	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.listeners) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, n.NotifyChanged(ctx))
	assert.Eventually(t, func() bool { return hits.Load() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
