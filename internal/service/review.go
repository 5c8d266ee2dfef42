package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
	"github.com/utafrali/storefront-ratings/pkg/pagination"
	"github.com/utafrali/storefront-ratings/pkg/validator"
)

// ReviewTrigger reacts to committed review writes.
type ReviewTrigger interface {
	ReviewCreated(ctx context.Context, review *domain.Review)
	ReviewUpdated(ctx context.Context, update *domain.ReviewUpdate)
}

// ReviewEventPublisher publishes review lifecycle events.
type ReviewEventPublisher interface {
	PublishReviewCreated(ctx context.Context, review *domain.Review) error
	PublishReviewUpdated(ctx context.Context, review *domain.Review) error
}

// CreateReviewInput holds the parameters for creating a review.
type CreateReviewInput struct {
	AuthorID           string   `json:"author_id" validate:"required"`
	ProductID          *string  `json:"product_id,omitempty"`
	StoreID            *string  `json:"store_id,omitempty"`
	OrderID            *string  `json:"order_id,omitempty"`
	Rating             int      `json:"rating" validate:"required,gte=1,lte=5"`
	Title              string   `json:"title" validate:"max=255"`
	Comment            string   `json:"comment" validate:"required"`
	Images             []string `json:"images" validate:"max=10,dive,url"`
	IsVerifiedPurchase bool     `json:"is_verified_purchase"`
}

// ReviewService implements the review write and read paths.
type ReviewService struct {
	repo    repository.ReviewRepository
	trigger ReviewTrigger
	events  ReviewEventPublisher
	logger  *slog.Logger
}

func NewReviewService(repo repository.ReviewRepository, trigger ReviewTrigger, events ReviewEventPublisher, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:    repo,
		trigger: trigger,
		events:  events,
		logger:  logger,
	}
}

// CreateReview validates and stores a review, then refreshes the aggregates of
// the entities it references. Only validation and storage errors are returned.
func (s *ReviewService) CreateReview(ctx context.Context, input *CreateReviewInput) (*domain.Review, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	images := input.Images
	if images == nil {
		images = []string{}
	}
	review := &domain.Review{
		ID:                 uuid.New().String(),
		AuthorID:           input.AuthorID,
		ProductID:          normalizeRef(input.ProductID),
		StoreID:            normalizeRef(input.StoreID),
		OrderID:            normalizeRef(input.OrderID),
		Rating:             input.Rating,
		Title:              input.Title,
		Comment:            input.Comment,
		Images:             images,
		IsVerifiedPurchase: input.IsVerifiedPurchase,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := domain.ValidateAssociation(review); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("author_id", review.AuthorID),
		slog.Int("rating", review.Rating),
	)

	s.trigger.ReviewCreated(ctx, review)

	if err := s.events.PublishReviewCreated(ctx, review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review.created event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	return review, nil
}

// GetReview returns a review by id.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return review, nil
}

// UpdateReview applies patch in a single update-and-fetch and recomputes the
// affected aggregates when a rating-relevant field changed.
func (s *ReviewService) UpdateReview(ctx context.Context, id string, patch *domain.ReviewPatch) (*domain.Review, error) {
	if err := validator.Validate(patch); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, apperrors.InvalidInput("no fields to update")
	}
	if err := rejectClearedRefs(patch); err != nil {
		return nil, err
	}
	// Same ref form as CreateReview, without touching the caller's patch.
	normalized := *patch
	normalized.ProductID = normalizeRef(patch.ProductID)
	normalized.StoreID = normalizeRef(patch.StoreID)
	patch = &normalized

	update, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update review %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", id),
		slog.Bool("affects_rating", patch.AffectsAggregate()),
	)

	if patch.AffectsAggregate() {
		s.trigger.ReviewUpdated(ctx, update)
	}

	if err := s.events.PublishReviewUpdated(ctx, update.Review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review.updated event",
			slog.String("review_id", id),
			slog.String("error", err.Error()),
		)
	}

	return update.Review, nil
}

// ListReviews returns a page of active reviews of ref and the total count.
func (s *ReviewService) ListReviews(ctx context.Context, ref domain.EntityRef, page pagination.Params) ([]domain.Review, int, error) {
	reviews, total, err := s.repo.ListByEntity(ctx, repository.ReviewFilter{
		Entity:  ref,
		Page:    page.Page,
		PerPage: page.PerPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews for %s: %w", ref, err)
	}
	return reviews, total, nil
}

func normalizeRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func rejectClearedRefs(patch *domain.ReviewPatch) error {
	fields := map[string]string{}
	if patch.ProductID != nil && strings.TrimSpace(*patch.ProductID) == "" {
		fields["product_id"] = "cannot be cleared"
	}
	if patch.StoreID != nil && strings.TrimSpace(*patch.StoreID) == "" {
		fields["store_id"] = "cannot be cleared"
	}
	if len(fields) > 0 {
		return apperrors.Validation("entity references can be reassigned but not removed", fields)
	}
	return nil
}
