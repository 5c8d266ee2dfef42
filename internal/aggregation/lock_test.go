package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_ExcludesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "a")
	require.NoError(t, err)

	other, err := m.Lock(ctx, "b")
	require.NoError(t, err, "different keys do not contend")
	other()

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(tctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, m.Len())

	again, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	again()
}

func TestKeyedMutex_HandsOffToWaiter(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		u, err := m.Lock(ctx, "k")
		if err != nil {
			t.Error(err)
			close(acquired)
			return
		}
		acquired <- u
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case u := <-acquired:
		require.NotNil(t, u)
		u()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	assert.Equal(t, 0, m.Len())
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, discardLogger()), mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	locker, mr := newRedisLocker(t, 10*time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "rating:product:p1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:rating:product:p1"))
	assert.Equal(t, 10*time.Second, mr.TTL("lock:rating:product:p1"))

	tctx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(tctx, "rating:product:p1")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	assert.False(t, mr.Exists("lock:rating:product:p1"))

	again, err := locker.Lock(ctx, "rating:product:p1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredHolderDoesNotReleaseNewOwner(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	owner, err := mr.Get("lock:k")
	require.NoError(t, err)

	stale()
	current, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, owner, current)

	fresh()
	assert.False(t, mr.Exists("lock:k"))
}

func TestRedisLocker_SerializesRecompute(t *testing.T) {
	locker, _ := newRedisLocker(t, 5*time.Second)

	agg := raceScenario(t, locker)

	assert.Equal(t, 2, agg.ReviewCount)
}
