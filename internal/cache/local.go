package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

// Local is a per-instance LRU of aggregates whose entries expire after a TTL.
type Local struct {
	lru *expirable.LRU[domain.EntityRef, domain.Aggregate]
}

func NewLocal(size int, ttl time.Duration) *Local {
	return &Local{lru: expirable.NewLRU[domain.EntityRef, domain.Aggregate](size, nil, ttl)}
}

func (c *Local) Get(ref domain.EntityRef) (domain.Aggregate, bool) {
	agg, ok := c.lru.Get(ref)
	if ok {
		cacheHitsTotal.WithLabelValues(TierLocal).Inc()
		return agg, true
	}
	cacheMissesTotal.WithLabelValues(TierLocal).Inc()
	return domain.Aggregate{}, false
}

func (c *Local) Set(ref domain.EntityRef, agg domain.Aggregate) {
	c.lru.Add(ref, agg)
}

func (c *Local) Delete(ref domain.EntityRef) {
	c.lru.Remove(ref)
}

func (c *Local) Len() int {
	return c.lru.Len()
}
