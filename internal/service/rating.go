package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository"
)

// Recomputer rebuilds one entity's aggregate.
type Recomputer interface {
	Recompute(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error)
}

// RatingCache is the read-through cache in front of stored aggregates.
type RatingCache interface {
	Get(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, bool)
	Set(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate)
	Delete(ctx context.Context, ref domain.EntityRef)
}

// EntityLocker serializes work on one entity. It must be the locker the engine
// recomputes under.
type EntityLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RatingService serves aggregates and manages the entity registry.
//
// Every cache write for an entity happens under the entity lock: the engine's
// sink refreshes the cache while recomputing, and read-path fills and evictions
// here take the same lock. A fill therefore cannot overwrite a newer aggregate.
type RatingService struct {
	entities repository.EntityRepository
	engine   Recomputer
	cache    RatingCache
	locker   EntityLocker
	logger   *slog.Logger
}

func NewRatingService(entities repository.EntityRepository, engine Recomputer, cache RatingCache, locker EntityLocker, logger *slog.Logger) *RatingService {
	return &RatingService{
		entities: entities,
		engine:   engine,
		cache:    cache,
		locker:   locker,
		logger:   logger,
	}
}

// GetRating returns the stored aggregate of ref, through the cache.
func (s *RatingService) GetRating(ctx context.Context, ref domain.EntityRef) (*domain.EntityRating, error) {
	if agg, ok := s.cache.Get(ctx, ref); ok {
		return &domain.EntityRating{EntityRef: ref, Aggregate: agg}, nil
	}

	unlock, err := s.locker.Lock(ctx, ref.Key())
	if err != nil {
		// Serve the stored value but leave the cache alone.
		s.logger.WarnContext(ctx, "rating cache fill skipped",
			slog.String("entity_kind", string(ref.Kind)),
			slog.String("entity_id", ref.ID),
			slog.String("error", err.Error()),
		)
		return s.readStored(ctx, ref)
	}
	defer unlock()

	// Filled by a recompute or another reader while we waited.
	if agg, ok := s.cache.Get(ctx, ref); ok {
		return &domain.EntityRating{EntityRef: ref, Aggregate: agg}, nil
	}
	rating, err := s.readStored(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, ref, rating.Aggregate)
	return rating, nil
}

func (s *RatingService) readStored(ctx context.Context, ref domain.EntityRef) (*domain.EntityRating, error) {
	agg, err := s.entities.GetAggregate(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get rating for %s: %w", ref, err)
	}
	return &domain.EntityRating{EntityRef: ref, Aggregate: agg}, nil
}

// Recompute rebuilds the aggregate of ref and returns the stored result. Unlike
// the write-path trigger it reports failures to the caller.
func (s *RatingService) Recompute(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error) {
	agg, err := s.engine.Recompute(ctx, ref)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("recompute %s: %w", ref, err)
	}
	return agg, nil
}

// RegisterEntity records a new product or store and counts any reviews that
// were written before it was known.
func (s *RatingService) RegisterEntity(ctx context.Context, ref domain.EntityRef) error {
	if err := s.entities.Register(ctx, ref); err != nil {
		return fmt.Errorf("register %s: %w", ref, err)
	}
	if _, err := s.engine.Recompute(ctx, ref); err != nil {
		return fmt.Errorf("initial recompute of %s: %w", ref, err)
	}
	return nil
}

// RemoveEntity forgets a product or store and evicts its cached aggregate.
// Its reviews are kept.
func (s *RatingService) RemoveEntity(ctx context.Context, ref domain.EntityRef) error {
	unlock, err := s.locker.Lock(ctx, ref.Key())
	if err != nil {
		return fmt.Errorf("lock %s: %w", ref, err)
	}
	defer unlock()

	if err := s.entities.Remove(ctx, ref); err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	s.cache.Delete(ctx, ref)
	return nil
}
