package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-ratings/internal/domain"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
	pkgkafka "github.com/utafrali/storefront-ratings/pkg/kafka"
)

// Kafka topics consumed by the rating service.
const (
	TopicProductCreated     = "ecommerce.product.created"
	TopicProductDeleted     = "ecommerce.product.deleted"
	TopicStoreCreated       = "ecommerce.store.created"
	TopicStoreDeleted       = "ecommerce.store.deleted"
	TopicRecomputeRequested = "ecommerce.rating.recompute_requested"
)

// ConsumerGroup is the consumer group of the rating service.
const ConsumerGroup = "rating-service"

// EntityData is the part of product and store lifecycle payloads we read.
type EntityData struct {
	ID string `json:"id"`
}

// RecomputeRequestedData is the payload of a rating.recompute_requested event.
type RecomputeRequestedData struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
}

// RatingService defines the operations the consumer drives.
type RatingService interface {
	RegisterEntity(ctx context.Context, ref domain.EntityRef) error
	RemoveEntity(ctx context.Context, ref domain.EntityRef) error
	Recompute(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error)
}

// Consumer processes catalog lifecycle and recompute events.
type Consumer struct {
	service RatingService
	logger  *slog.Logger
}

func NewConsumer(service RatingService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// Topics lists every topic Handle understands.
func (c *Consumer) Topics() []string {
	return []string{
		TopicProductCreated,
		TopicProductDeleted,
		TopicStoreCreated,
		TopicStoreDeleted,
		TopicRecomputeRequested,
	}
}

// Handle dispatches an event by type. Unknown types are acknowledged and ignored.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated:
		return c.handleEntityCreated(ctx, event, domain.EntityProduct)
	case TopicProductDeleted:
		return c.handleEntityDeleted(ctx, event, domain.EntityProduct)
	case TopicStoreCreated:
		return c.handleEntityCreated(ctx, event, domain.EntityStore)
	case TopicStoreDeleted:
		return c.handleEntityDeleted(ctx, event, domain.EntityStore)
	case TopicRecomputeRequested:
		return c.HandleRecomputeRequested(ctx, event)
	default:
		c.logger.DebugContext(ctx, "ignoring event",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func entityRef(event *pkgkafka.Event, kind domain.EntityKind) (domain.EntityRef, error) {
	var data EntityData
	if err := event.UnmarshalData(&data); err != nil {
		return domain.EntityRef{}, pkgkafka.Permanent(fmt.Errorf("unmarshal %s data: %w", event.EventType, err))
	}
	id := data.ID
	if id == "" {
		id = event.AggregateID
	}
	if id == "" {
		return domain.EntityRef{}, pkgkafka.Permanent(fmt.Errorf("%s event %s carries no entity id", event.EventType, event.EventID))
	}
	return domain.EntityRef{Kind: kind, ID: id}, nil
}

func (c *Consumer) handleEntityCreated(ctx context.Context, event *pkgkafka.Event, kind domain.EntityKind) error {
	ref, err := entityRef(event, kind)
	if err != nil {
		return err
	}
	if err := c.service.RegisterEntity(ctx, ref); err != nil {
		return fmt.Errorf("register %s: %w", ref, err)
	}

	c.logger.InfoContext(ctx, "entity registered",
		slog.String("entity_kind", string(ref.Kind)),
		slog.String("entity_id", ref.ID),
	)
	return nil
}

func (c *Consumer) handleEntityDeleted(ctx context.Context, event *pkgkafka.Event, kind domain.EntityKind) error {
	ref, err := entityRef(event, kind)
	if err != nil {
		return err
	}
	if err := c.service.RemoveEntity(ctx, ref); err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}

	c.logger.InfoContext(ctx, "entity removed",
		slog.String("entity_kind", string(ref.Kind)),
		slog.String("entity_id", ref.ID),
	)
	return nil
}

// HandleRecomputeRequested recomputes one entity on behalf of an out-of-band writer.
func (c *Consumer) HandleRecomputeRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data RecomputeRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal rating.recompute_requested data: %w", err))
	}
	kind, err := domain.ParseEntityKind(data.EntityKind)
	if err != nil {
		return pkgkafka.Permanent(err)
	}
	ref := domain.EntityRef{Kind: kind, ID: data.EntityID}

	agg, err := c.service.Recompute(ctx, ref)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.logger.WarnContext(ctx, "recompute requested for unknown entity",
				slog.String("entity_kind", string(ref.Kind)),
				slog.String("entity_id", ref.ID),
			)
			return nil
		}
		return fmt.Errorf("recompute %s: %w", ref, err)
	}

	c.logger.InfoContext(ctx, "rating recomputed on request",
		slog.String("entity_kind", string(ref.Kind)),
		slog.String("entity_id", ref.ID),
		slog.String("rating", agg.RatingString()),
		slog.Int("review_count", agg.ReviewCount),
	)
	return nil
}
