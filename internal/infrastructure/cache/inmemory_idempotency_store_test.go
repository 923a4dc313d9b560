package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("expired entry can be marked again", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "evt_short", time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		isNew, err := store.MarkProcessed(ctx, "evt_short", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_IsProcessedAndRelease(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	ok, err := store.IsProcessed(ctx, "evt_9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.MarkProcessed(ctx, "evt_9", time.Hour)
	require.NoError(t, err)
	ok, _ = store.IsProcessed(ctx, "evt_9")
	assert.True(t, ok)

	require.NoError(t, store.Release(ctx, "evt_9"))
	ok, _ = store.IsProcessed(ctx, "evt_9")
	assert.False(t, ok)

	isNew, err := store.MarkProcessed(ctx, "evt_9", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew, "released id is accepted again")
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "gone", time.Millisecond)
	_, _ = store.MarkProcessed(ctx, "kept", time.Hour)
	assert.Equal(t, 2, store.Size())

	time.Sleep(5 * time.Millisecond)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
	ok, _ := store.IsProcessed(ctx, "kept")
	assert.True(t, ok)
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(context.Background(), "same", time.Hour)
			if err == nil && isNew {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
