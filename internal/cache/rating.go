package cache

import (
	"context"
	"log/slog"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

// RatingCache layers the local LRU over the optional Redis tier. Redis failures
// are logged and treated as misses.
type RatingCache struct {
	local  *Local
	remote *Redis
	logger *slog.Logger
}

// NewRatingCache builds the cache. remote may be nil when Redis is disabled.
// local may be nil when several replicas write aggregates: a process-local tier
// is only refreshed by the writes of its own process.
func NewRatingCache(local *Local, remote *Redis, logger *slog.Logger) *RatingCache {
	return &RatingCache{local: local, remote: remote, logger: logger}
}

func (c *RatingCache) Get(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, bool) {
	if c.local != nil {
		if agg, ok := c.local.Get(ref); ok {
			return agg, true
		}
	}
	if c.remote == nil {
		return domain.Aggregate{}, false
	}

	agg, ok, err := c.remote.Get(ctx, ref)
	if err != nil {
		c.warn(ctx, "rating cache read failed", ref, err)
		return domain.Aggregate{}, false
	}
	if ok && c.local != nil {
		c.local.Set(ref, agg)
	}
	return agg, ok
}

func (c *RatingCache) Set(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) {
	if c.local != nil {
		c.local.Set(ref, agg)
	}
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, ref, agg); err != nil {
		c.warn(ctx, "rating cache write failed", ref, err)
	}
}

func (c *RatingCache) Delete(ctx context.Context, ref domain.EntityRef) {
	if c.local != nil {
		c.local.Delete(ref)
	}
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(ctx, ref); err != nil {
		c.warn(ctx, "rating cache delete failed", ref, err)
	}
}

func (c *RatingCache) warn(ctx context.Context, msg string, ref domain.EntityRef, err error) {
	c.logger.WarnContext(ctx, msg,
		slog.String("entity_kind", string(ref.Kind)),
		slog.String("entity_id", ref.ID),
		slog.String("error", err.Error()),
	)
}
