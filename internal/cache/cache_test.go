package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

var (
	product = domain.EntityRef{Kind: domain.EntityProduct, ID: "p1"}
	store   = domain.EntityRef{Kind: domain.EntityStore, ID: "s1"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisTier(t *testing.T, cfg BreakerConfig) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Minute, cfg, discardLogger()), mr
}

func TestLocal_GetSetDelete(t *testing.T) {
	c := NewLocal(10, time.Minute)
	before := testutil.ToFloat64(cacheMissesTotal.WithLabelValues(TierLocal))

	_, ok := c.Get(product)
	assert.False(t, ok)
	assert.Equal(t, before+1, testutil.ToFloat64(cacheMissesTotal.WithLabelValues(TierLocal)))

	c.Set(product, domain.Aggregate{RatingTenths: 43, ReviewCount: 3})
	agg, ok := c.Get(product)
	require.True(t, ok)
	assert.Equal(t, "4.3", agg.RatingString())

	c.Delete(product)
	assert.Equal(t, 0, c.Len())
}

func TestLocal_Expires(t *testing.T) {
	c := NewLocal(10, 20*time.Millisecond)
	c.Set(store, domain.Aggregate{RatingTenths: 10, ReviewCount: 1})

	assert.Eventually(t, func() bool {
		_, ok := c.Get(store)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRedis_RoundTrip(t *testing.T) {
	c, mr := newRedisTier(t, DefaultBreakerConfig("test-roundtrip"))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, product)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, product, domain.Aggregate{RatingTenths: 45, ReviewCount: 20}))
	raw, err := mr.Get("rating:product:p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rating":"4.5","review_count":20}`, raw)
	assert.Equal(t, time.Minute, mr.TTL("rating:product:p1"))

	agg, ok, err := c.Get(ctx, product)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Aggregate{RatingTenths: 45, ReviewCount: 20}, agg)

	require.NoError(t, c.Delete(ctx, product))
	assert.False(t, mr.Exists("rating:product:p1"))
	assert.Equal(t, gobreaker.StateClosed, c.State(), "misses do not count as failures")
}

func TestRedis_CorruptValue(t *testing.T) {
	c, mr := newRedisTier(t, DefaultBreakerConfig("test-corrupt"))
	require.NoError(t, mr.Set("rating:store:s1", "not-json"))

	_, ok, err := c.Get(context.Background(), store)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedis_BreakerOpensWhenRedisIsDown(t *testing.T) {
	cfg := DefaultBreakerConfig("test-breaker")
	cfg.MinRequests = 2
	c, mr := newRedisTier(t, cfg)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 2; i++ {
		_, _, err := c.Get(ctx, product)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, c.State())
	_, _, err := c.Get(ctx, product)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 2.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("test-breaker")))
}

func TestRatingCache_RemoteHitWarmsLocal(t *testing.T) {
	remote, _ := newRedisTier(t, DefaultBreakerConfig("test-warm"))
	local := NewLocal(10, time.Minute)
	c := NewRatingCache(local, remote, discardLogger())
	ctx := context.Background()
	require.NoError(t, remote.Set(ctx, product, domain.Aggregate{RatingTenths: 38, ReviewCount: 5}))

	agg, ok := c.Get(ctx, product)
	require.True(t, ok)
	assert.Equal(t, "3.8", agg.RatingString())

	cached, ok := local.Get(product)
	require.True(t, ok)
	assert.Equal(t, agg, cached)
}

func TestRatingCache_RemoteFailureIsMiss(t *testing.T) {
	remote, mr := newRedisTier(t, DefaultBreakerConfig("test-failure"))
	c := NewRatingCache(NewLocal(10, time.Minute), remote, discardLogger())
	mr.Close()

	_, ok := c.Get(context.Background(), store)
	assert.False(t, ok)

	c.Set(context.Background(), store, domain.Aggregate{RatingTenths: 20, ReviewCount: 1})
	agg, ok := c.Get(context.Background(), store)
	require.True(t, ok, "local tier still serves")
	assert.Equal(t, 1, agg.ReviewCount)
}

func TestRatingCache_LocalOnly(t *testing.T) {
	c := NewRatingCache(NewLocal(10, time.Minute), nil, discardLogger())
	ctx := context.Background()

	c.Set(ctx, product, domain.Aggregate{RatingTenths: 50, ReviewCount: 1})
	_, ok := c.Get(ctx, product)
	assert.True(t, ok)

	c.Delete(ctx, product)
	_, ok = c.Get(ctx, product)
	assert.False(t, ok)
}

func TestRatingCache_SharedRemoteOnlyAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	newReplica := func(name string) *RatingCache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })
		return NewRatingCache(nil, NewRedis(client, time.Minute, DefaultBreakerConfig(name), discardLogger()), discardLogger())
	}
	a, b := newReplica("replica-a"), newReplica("replica-b")
	ctx := context.Background()

	a.Set(ctx, product, domain.Aggregate{RatingTenths: 40, ReviewCount: 1})
	agg, ok := b.Get(ctx, product)
	require.True(t, ok)
	assert.Equal(t, 1, agg.ReviewCount)

	a.Set(ctx, product, domain.Aggregate{RatingTenths: 45, ReviewCount: 2})
	agg, ok = b.Get(ctx, product)
	require.True(t, ok)
	assert.Equal(t, "4.5", agg.RatingString(), "no process-local copy left behind")

	b.Delete(ctx, product)
	_, ok = a.Get(ctx, product)
	assert.False(t, ok)
}

type stubSink struct {
	err     error
	applied []domain.Aggregate
}

func (s *stubSink) ApplyAggregate(_ context.Context, _ domain.EntityRef, agg domain.Aggregate) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, agg)
	return nil
}

func TestCachingSink(t *testing.T) {
	remote, mr := newRedisTier(t, DefaultBreakerConfig("test-sink"))
	local := NewLocal(10, time.Minute)
	c := NewRatingCache(local, remote, discardLogger())
	ctx := context.Background()

	t.Run("write refreshes both tiers", func(t *testing.T) {
		inner := &stubSink{}
		local.Set(product, domain.Aggregate{RatingTenths: 10, ReviewCount: 1})

		err := NewCachingSink(inner, c).ApplyAggregate(ctx, product, domain.Aggregate{RatingTenths: 30, ReviewCount: 2})
		require.NoError(t, err)

		assert.Len(t, inner.applied, 1)
		agg, ok := local.Get(product)
		require.True(t, ok)
		assert.Equal(t, 2, agg.ReviewCount)
		assert.True(t, mr.Exists("rating:product:p1"))
	})

	t.Run("failed write leaves cache alone", func(t *testing.T) {
		inner := &stubSink{err: errors.New("not found")}

		err := NewCachingSink(inner, c).ApplyAggregate(ctx, store, domain.Aggregate{RatingTenths: 50, ReviewCount: 1})
		assert.Error(t, err)

		_, ok := local.Get(store)
		assert.False(t, ok)
		assert.False(t, mr.Exists("rating:store:s1"))
	})
}
