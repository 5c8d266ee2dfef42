package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/storefront-ratings/internal/domain"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
	"github.com/utafrali/storefront-ratings/pkg/tracing"
)

const (
	tracerName = "github.com/utafrali/storefront-ratings/internal/aggregation"

	defaultObserverTimeout = 2 * time.Second
)

// ReviewSource reads the ratings that feed an aggregate.
type ReviewSource interface {
	ListActiveRatings(ctx context.Context, ref domain.EntityRef) ([]int, error)
}

// AggregateSink stores a freshly computed aggregate, replacing whatever was there.
type AggregateSink interface {
	ApplyAggregate(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) error
}

// RatingObserver is told about every aggregate the engine writes. It is called
// after the entity lock has been released, so notifications for one entity may
// arrive out of order; each one carries the full aggregate.
type RatingObserver interface {
	RatingUpdated(ctx context.Context, rating domain.EntityRating)
}

// Engine recomputes rating aggregates from scratch. Recomputations of the same
// entity never overlap, so the last one to run sees every committed review.
type Engine struct {
	source    ReviewSource
	sink      AggregateSink
	locker    Locker
	observers []RatingObserver
	// bounds each notification; the caller's deadline still applies
	observerTimeout time.Duration
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserverTimeout bounds each observer notification.
func WithObserverTimeout(d time.Duration) Option {
	return func(e *Engine) { e.observerTimeout = d }
}

// WithObserver registers an observer notified after each successful write.
func WithObserver(o RatingObserver) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func NewEngine(source ReviewSource, sink AggregateSink, locker Locker, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:          source,
		sink:            sink,
		locker:          locker,
		observerTimeout: defaultObserverTimeout,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recompute rebuilds the aggregate of ref from the ratings of its active reviews
// and overwrites the stored value. Unknown entities yield apperrors.ErrNotFound.
func (e *Engine) Recompute(ctx context.Context, ref domain.EntityRef) (agg domain.Aggregate, err error) {
	if !ref.Kind.IsValid() {
		return domain.Aggregate{}, apperrors.InvalidInput(fmt.Sprintf("unknown entity kind %q", ref.Kind))
	}
	kind := string(ref.Kind)
	start := time.Now()

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "rating.Recompute")
	span.SetAttributes(
		attribute.String("rating.entity_kind", kind),
		attribute.String("rating.entity_id", ref.ID),
	)
	defer func() {
		outcome := OutcomeOK
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			outcome = OutcomeNotFound
		case err != nil:
			outcome = OutcomeError
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		RecomputeTotal.WithLabelValues(kind, outcome).Inc()
		RecomputeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	agg, err = e.recomputeLocked(ctx, ref, start)
	if err != nil {
		return domain.Aggregate{}, err
	}
	span.SetAttributes(
		attribute.String("rating.value", agg.RatingString()),
		attribute.Int("rating.review_count", agg.ReviewCount),
	)

	e.logger.DebugContext(ctx, "rating recomputed",
		slog.String("entity_kind", kind),
		slog.String("entity_id", ref.ID),
		slog.String("rating", agg.RatingString()),
		slog.Int("review_count", agg.ReviewCount),
	)

	e.notify(ctx, domain.EntityRating{EntityRef: ref, Aggregate: agg})
	return agg, nil
}

// recomputeLocked runs read, compute and overwrite under the entity lock. Only
// store I/O belongs here.
func (e *Engine) recomputeLocked(ctx context.Context, ref domain.EntityRef, start time.Time) (domain.Aggregate, error) {
	unlock, err := e.locker.Lock(ctx, ref.Key())
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("lock %s: %w", ref, err)
	}
	LockWaitDuration.WithLabelValues(string(ref.Kind)).Observe(time.Since(start).Seconds())
	defer unlock()

	ratings, err := e.source.ListActiveRatings(ctx, ref)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("list ratings for %s: %w", ref, err)
	}

	agg := domain.ComputeAggregate(ratings)
	if err := e.sink.ApplyAggregate(ctx, ref, agg); err != nil {
		return domain.Aggregate{}, fmt.Errorf("apply aggregate to %s: %w", ref, err)
	}
	return agg, nil
}

func (e *Engine) notify(ctx context.Context, rating domain.EntityRating) {
	for _, o := range e.observers {
		octx, cancel := context.WithTimeout(ctx, e.observerTimeout)
		o.RatingUpdated(octx, rating)
		cancel()
	}
}
