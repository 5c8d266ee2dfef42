package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

// ReviewRepository keeps reviews in process. It backs local runs and tests.
type ReviewRepository struct {
	mu      sync.RWMutex
	reviews map[string]domain.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{reviews: make(map[string]domain.Review)}
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

func (r *ReviewRepository) Create(_ context.Context, review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[review.ID]; ok {
		return apperrors.Conflict("review " + review.ID + " already exists")
	}
	r.reviews[review.ID] = cloneReview(*review)
	return nil
}

func (r *ReviewRepository) GetByID(_ context.Context, id string) (*domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	out := cloneReview(rv)
	return &out, nil
}

func (r *ReviewRepository) Update(_ context.Context, id string, patch *domain.ReviewPatch) (*domain.ReviewUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	previous := rv.Refs()
	patch.Apply(&rv)
	rv.UpdatedAt = time.Now().UTC()
	r.reviews[id] = cloneReview(rv)

	out := cloneReview(rv)
	return &domain.ReviewUpdate{Review: &out, PreviousRefs: previous}, nil
}

func (r *ReviewRepository) ListByEntity(_ context.Context, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	r.mu.RLock()
	matched := make([]domain.Review, 0)
	for _, rv := range r.reviews {
		if rv.IsActive && refersTo(&rv, filter.Entity) {
			matched = append(matched, cloneReview(rv))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	start := 0
	if filter.Page > 1 {
		start = (filter.Page - 1) * perPage
	}
	if start >= total {
		return []domain.Review{}, total, nil
	}
	end := min(start+perPage, total)
	return matched[start:end], total, nil
}

func (r *ReviewRepository) ListActiveRatings(_ context.Context, ref domain.EntityRef) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ratings []int
	for _, rv := range r.reviews {
		if rv.IsActive && refersTo(&rv, ref) {
			ratings = append(ratings, rv.Rating)
		}
	}
	return ratings, nil
}

// SetActive flips is_active without going through the write path, the way an
// out-of-band bulk moderation job would.
func (r *ReviewRepository) SetActive(id string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv, ok := r.reviews[id]; ok {
		rv.IsActive = active
		r.reviews[id] = rv
	}
}

func refersTo(rv *domain.Review, ref domain.EntityRef) bool {
	for _, own := range rv.Refs() {
		if own == ref {
			return true
		}
	}
	return false
}

func cloneReview(rv domain.Review) domain.Review {
	rv.ProductID = cloneStr(rv.ProductID)
	rv.StoreID = cloneStr(rv.StoreID)
	rv.OrderID = cloneStr(rv.OrderID)
	rv.Images = append([]string(nil), rv.Images...)
	if rv.Images == nil {
		rv.Images = []string{}
	}
	return rv
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
