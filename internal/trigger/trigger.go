// Package trigger reacts to committed review writes by recomputing the rating
// aggregates of every entity the write touched.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront-ratings/internal/domain"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

const defaultRecomputeTimeout = 10 * time.Second

var dualReferenceTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "review_dual_reference_total",
	Help: "Reviews written with both a product and a store reference",
})

// Recomputer rebuilds one entity's aggregate.
type Recomputer interface {
	Recompute(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error)
}

// LifecycleTrigger runs after a review write has committed. Recompute failures
// never reach the writer: they are logged and the stored aggregate stays stale
// until the next recompute of that entity.
type LifecycleTrigger struct {
	engine  Recomputer
	timeout time.Duration
	logger  *slog.Logger
}

func New(engine Recomputer, logger *slog.Logger) *LifecycleTrigger {
	return &LifecycleTrigger{
		engine:  engine,
		timeout: defaultRecomputeTimeout,
		logger:  logger,
	}
}

// WithTimeout overrides the budget for the recomputations of one write.
func (t *LifecycleTrigger) WithTimeout(d time.Duration) *LifecycleTrigger {
	t.timeout = d
	return t
}

// ReviewCreated recomputes the product and store of a new review.
func (t *LifecycleTrigger) ReviewCreated(ctx context.Context, review *domain.Review) {
	if review.HasDualReference() {
		t.flagDualReference(ctx, review)
	}
	t.recompute(ctx, review.ID, review.Refs())
}

// ReviewUpdated recomputes every entity the review now points at, followed by
// any entity the update detached it from.
func (t *LifecycleTrigger) ReviewUpdated(ctx context.Context, update *domain.ReviewUpdate) {
	if update.Review.HasDualReference() && len(update.PreviousRefs) < 2 {
		t.flagDualReference(ctx, update.Review)
	}
	refs := append(update.Review.Refs(), update.DetachedRefs()...)
	t.recompute(ctx, update.Review.ID, refs)
}

func (t *LifecycleTrigger) recompute(ctx context.Context, reviewID string, refs []domain.EntityRef) {
	// The write has committed; a client hanging up must not skip the recompute.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	for _, ref := range refs {
		_, err := t.engine.Recompute(ctx, ref)
		if err == nil {
			continue
		}
		attrs := []any{
			slog.String("review_id", reviewID),
			slog.String("entity_kind", string(ref.Kind)),
			slog.String("entity_id", ref.ID),
			slog.String("error", err.Error()),
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			t.logger.WarnContext(ctx, "rating target not found, aggregate not updated", attrs...)
			continue
		}
		t.logger.ErrorContext(ctx, "rating recompute failed", attrs...)
	}
}

func (t *LifecycleTrigger) flagDualReference(ctx context.Context, review *domain.Review) {
	dualReferenceTotal.Inc()
	t.logger.WarnContext(ctx, "review references both a product and a store",
		slog.String("review_id", review.ID),
		slog.String("product_id", *review.ProductID),
		slog.String("store_id", *review.StoreID),
	)
}
