package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClockedStore returns a store whose clock the test advances by hand
func newClockedStore(t *testing.T) (*InMemoryIdempotencyStore, *time.Time) {
	t.Helper()
	store := NewInMemoryIdempotencyStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	t.Run("marks new event as processed", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "event-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("returns false for already processed event", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "event-2", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "event-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("allows reprocessing after expiration", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "event-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)

		*now = now.Add(time.Minute)

		isNew, err = store.MarkProcessed(ctx, "event-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "event-1", time.Minute)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.True(t, processed)

	*now = now.Add(2 * time.Minute)
	processed, err = store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "event-1"))
	require.NoError(t, store.Release(ctx, "never-marked"))

	isNew, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	assert.Equal(t, 2, store.Size())

	*now = now.Add(10 * time.Minute)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
	processed, err := store.IsProcessed(ctx, "long")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore(0)
	defer store.Close()
	ctx := context.Background()

	const workers = 20
	const events = 50

	var newCount atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < events; i++ {
				isNew, err := store.MarkProcessed(ctx, fmt.Sprintf("event-%d", i), time.Hour)
				if err == nil && isNew {
					newCount.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(events), newCount.Load())
	assert.Equal(t, events, store.Size())
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Millisecond)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
