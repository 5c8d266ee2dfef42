package cache

import (
	"context"

	"github.com/utafrali/storefront-ratings/internal/aggregation"
	"github.com/utafrali/storefront-ratings/internal/domain"
)

// CachingSink overwrites the stored aggregate and then refreshes the cache, so
// readers never see a cached value older than the last successful write.
type CachingSink struct {
	next  aggregation.AggregateSink
	cache *RatingCache
}

func NewCachingSink(next aggregation.AggregateSink, cache *RatingCache) *CachingSink {
	return &CachingSink{next: next, cache: cache}
}

var _ aggregation.AggregateSink = (*CachingSink)(nil)

func (s *CachingSink) ApplyAggregate(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) error {
	if err := s.next.ApplyAggregate(ctx, ref, agg); err != nil {
		return err
	}
	s.cache.Set(ctx, ref, agg)
	return nil
}
