package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront-ratings/internal/domain"
	pkgkafka "github.com/utafrali/storefront-ratings/pkg/kafka"
)

// Kafka topics produced by the rating service.
const (
	TopicReviewCreated = "ecommerce.review.created"
	TopicReviewUpdated = "ecommerce.review.updated"
	TopicRatingUpdated = "ecommerce.rating.updated"
)

// Aggregate type constants.
const (
	AggregateTypeReview = "review"
	AggregateTypeRating = "rating"
)

// SourceRatingService identifies events originating from this service.
const SourceRatingService = "rating-service"

// ReviewData is the payload of review.created and review.updated events.
type ReviewData struct {
	ID                 string    `json:"id"`
	AuthorID           string    `json:"author_id"`
	ProductID          *string   `json:"product_id,omitempty"`
	StoreID            *string   `json:"store_id,omitempty"`
	OrderID            *string   `json:"order_id,omitempty"`
	Rating             int       `json:"rating"`
	Title              string    `json:"title,omitempty"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	IsActive           bool      `json:"is_active"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RatingUpdatedData is the payload of a rating.updated event.
type RatingUpdatedData struct {
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	Rating      string `json:"rating"`
	ReviewCount int    `json:"review_count"`
}

// Producer publishes review and rating events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ID:                 r.ID,
		AuthorID:           r.AuthorID,
		ProductID:          r.ProductID,
		StoreID:            r.StoreID,
		OrderID:            r.OrderID,
		Rating:             r.Rating,
		Title:              r.Title,
		IsVerifiedPurchase: r.IsVerifiedPurchase,
		IsActive:           r.IsActive,
		UpdatedAt:          r.UpdatedAt,
	}
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, review *domain.Review) error {
	return p.publishReview(ctx, TopicReviewCreated, review)
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, review *domain.Review) error {
	return p.publishReview(ctx, TopicReviewUpdated, review)
}

func (p *Producer) publishReview(ctx context.Context, topic string, review *domain.Review) error {
	event, err := pkgkafka.NewEvent(ctx, topic, review.ID, AggregateTypeReview, SourceRatingService, reviewData(review))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published review event",
		slog.String("topic", topic),
		slog.String("review_id", review.ID),
	)
	return nil
}

// PublishRatingUpdated publishes a rating.updated event keyed by the entity.
func (p *Producer) PublishRatingUpdated(ctx context.Context, rating domain.EntityRating) error {
	data := RatingUpdatedData{
		EntityKind:  string(rating.Kind),
		EntityID:    rating.ID,
		Rating:      rating.RatingString(),
		ReviewCount: rating.ReviewCount,
	}
	event, err := pkgkafka.NewEvent(ctx, TopicRatingUpdated, rating.Key(), AggregateTypeRating, SourceRatingService, data)
	if err != nil {
		return fmt.Errorf("create rating.updated event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicRatingUpdated, event); err != nil {
		return fmt.Errorf("publish rating.updated event: %w", err)
	}
	return nil
}

// RatingUpdated publishes the new aggregate and logs failures; downstream
// consumers can always reread the rating, so a lost event is not fatal.
func (p *Producer) RatingUpdated(ctx context.Context, rating domain.EntityRating) {
	if err := p.PublishRatingUpdated(ctx, rating); err != nil {
		p.logger.WarnContext(ctx, "failed to publish rating.updated event",
			slog.String("entity_kind", string(rating.Kind)),
			slog.String("entity_id", rating.ID),
			slog.String("error", err.Error()),
		)
	}
}
