package repository

import (
	"context"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

// ReviewFilter selects a page of active reviews for one entity.
type ReviewFilter struct {
	Entity  domain.EntityRef
	Page    int
	PerPage int
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	// Create inserts a new review.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID returns apperrors.ErrNotFound when no review has the id.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// Update applies patch and returns the post-write document together with the
	// entity references the review held before the write, in one statement.
	Update(ctx context.Context, id string, patch *domain.ReviewPatch) (*domain.ReviewUpdate, error)

	// ListByEntity returns a page of active reviews and the total count.
	ListByEntity(ctx context.Context, filter ReviewFilter) ([]domain.Review, int, error)

	// ListActiveRatings returns the ratings of every active review of ref.
	ListActiveRatings(ctx context.Context, ref domain.EntityRef) ([]int, error)
}

// EntityRepository stores the products and stores known to the service and
// their denormalized rating aggregates.
type EntityRepository interface {
	// Register records an entity with a zero aggregate. Registering an existing
	// entity is a no-op.
	Register(ctx context.Context, ref domain.EntityRef) error

	// Remove forgets an entity. Removing an unknown entity is a no-op.
	Remove(ctx context.Context, ref domain.EntityRef) error

	// GetAggregate returns apperrors.ErrNotFound for unknown entities.
	GetAggregate(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error)

	// ApplyAggregate overwrites the stored aggregate. It returns
	// apperrors.ErrNotFound for unknown entities.
	ApplyAggregate(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) error

	// ListIDs returns up to limit ids of the given kind greater than after, in order.
	ListIDs(ctx context.Context, kind domain.EntityKind, after string, limit int) ([]string, error)
}
