package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(2, time.Minute)

	seen, err := store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "e1"))
	seen, _ = store.Contains(ctx, "e1")
	assert.True(t, seen)

	require.NoError(t, store.Add(ctx, "e2"))
	require.NoError(t, store.Add(ctx, "e3"))
	assert.Equal(t, 2, store.Len())
	seen, _ = store.Contains(ctx, "e1")
	assert.False(t, seen, "oldest entry evicted")
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(10, 20*time.Millisecond)
	require.NoError(t, store.Add(context.Background(), "e1"))

	assert.Eventually(t, func() bool {
		seen, _ := store.Contains(context.Background(), "e1")
		return !seen
	}, time.Second, 5*time.Millisecond)
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisIdempotencyStore(client, "ratings:events:", time.Hour)

	seen, err := store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "e1"))
	seen, err = store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("ratings:events:e1"))

	mr.FastForward(2 * time.Hour)
	seen, _ = store.Contains(ctx, "e1")
	assert.False(t, seen)
}

type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingStore) Add(context.Context, string) error { return errors.New("redis down") }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	calls := 0
	inner := func(context.Context, *Event) error { calls++; return nil }

	t.Run("duplicate skipped", func(t *testing.T) {
		calls = 0
		h := IdempotentHandler(NewMemoryIdempotencyStore(10, time.Minute), inner, testLogger())
		e := &Event{EventID: "e1", EventType: "product.created"}
		require.NoError(t, h(ctx, e))
		require.NoError(t, h(ctx, e))
		assert.Equal(t, 1, calls)
	})

	t.Run("failure not recorded", func(t *testing.T) {
		store := NewMemoryIdempotencyStore(10, time.Minute)
		failing := func(context.Context, *Event) error { return errors.New("boom") }
		h := IdempotentHandler(store, failing, testLogger())
		require.Error(t, h(ctx, &Event{EventID: "e2"}))
		seen, _ := store.Contains(ctx, "e2")
		assert.False(t, seen)
	})

	t.Run("empty id passes through", func(t *testing.T) {
		calls = 0
		h := IdempotentHandler(NewMemoryIdempotencyStore(10, time.Minute), inner, testLogger())
		require.NoError(t, h(ctx, &Event{}))
		require.NoError(t, h(ctx, &Event{}))
		assert.Equal(t, 2, calls)
	})

	t.Run("store failure processes anyway", func(t *testing.T) {
		calls = 0
		h := IdempotentHandler(failingStore{}, inner, testLogger())
		require.NoError(t, h(ctx, &Event{EventID: "e3"}))
		assert.Equal(t, 1, calls)
	})
}
