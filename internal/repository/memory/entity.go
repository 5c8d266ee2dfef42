package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

// EntityRepository keeps registered products and stores with their aggregates.
type EntityRepository struct {
	mu       sync.RWMutex
	entities map[domain.EntityRef]domain.Aggregate
}

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{entities: make(map[domain.EntityRef]domain.Aggregate)}
}

var _ repository.EntityRepository = (*EntityRepository)(nil)

func (r *EntityRepository) Register(_ context.Context, ref domain.EntityRef) error {
	if !ref.Kind.IsValid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown entity kind %q", ref.Kind))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[ref]; !ok {
		r.entities[ref] = domain.Aggregate{}
	}
	return nil
}

func (r *EntityRepository) Remove(_ context.Context, ref domain.EntityRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, ref)
	return nil
}

func (r *EntityRepository) GetAggregate(_ context.Context, ref domain.EntityRef) (domain.Aggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.entities[ref]
	if !ok {
		return domain.Aggregate{}, apperrors.NotFound(string(ref.Kind), ref.ID)
	}
	return agg, nil
}

func (r *EntityRepository) ApplyAggregate(_ context.Context, ref domain.EntityRef, agg domain.Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[ref]; !ok {
		return apperrors.NotFound(string(ref.Kind), ref.ID)
	}
	r.entities[ref] = agg
	return nil
}

func (r *EntityRepository) ListIDs(_ context.Context, kind domain.EntityKind, after string, limit int) ([]string, error) {
	r.mu.RLock()
	var ids []string
	for ref := range r.entities {
		if ref.Kind == kind && ref.ID > after {
			ids = append(ids, ref.ID)
		}
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
