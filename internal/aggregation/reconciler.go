package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront-ratings/internal/domain"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

// EntityLister pages through the ids of registered entities.
type EntityLister interface {
	ListIDs(ctx context.Context, kind domain.EntityKind, after string, limit int) ([]string, error)
}

// Recomputer is the part of Engine the reconciler needs.
type Recomputer interface {
	Recompute(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, error)
}

// ReconcileStats summarizes a reconciliation sweep.
type ReconcileStats struct {
	Processed int
	Failed    int
}

// Reconciler periodically recomputes every registered entity. It repairs
// aggregates left stale by writes that bypassed the review write path.
type Reconciler struct {
	entities  EntityLister
	engine    Recomputer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewReconciler(entities EntityLister, engine Recomputer, interval time.Duration, batchSize int, logger *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Reconciler{
		entities:  entities,
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps on every tick until ctx is cancelled. A zero interval disables it.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("rating reconciler disabled")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := r.ReconcileOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("rating reconciliation failed", slog.String("error", err.Error()))
				continue
			}
			r.logger.Info("rating reconciliation finished",
				slog.Int("processed", stats.Processed),
				slog.Int("failed", stats.Failed),
			)
		}
	}
}

// ReconcileOnce recomputes every product and then every store. Per-entity
// failures are counted and skipped; listing failures abort the sweep.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	for _, kind := range []domain.EntityKind{domain.EntityProduct, domain.EntityStore} {
		after := ""
		for {
			ids, err := r.entities.ListIDs(ctx, kind, after, r.batchSize)
			if err != nil {
				return stats, fmt.Errorf("list %s ids: %w", kind, err)
			}
			for _, id := range ids {
				if err := ctx.Err(); err != nil {
					return stats, err
				}
				ref := domain.EntityRef{Kind: kind, ID: id}
				if _, err := r.engine.Recompute(ctx, ref); err != nil {
					stats.Failed++
					ReconcileRuns.WithLabelValues(string(kind), OutcomeError).Inc()
					level := slog.LevelError
					if errors.Is(err, apperrors.ErrNotFound) {
						// Removed between listing and recompute.
						level = slog.LevelDebug
					}
					r.logger.Log(ctx, level, "reconcile entity failed",
						slog.String("entity_kind", string(kind)),
						slog.String("entity_id", id),
						slog.String("error", err.Error()),
					)
					continue
				}
				stats.Processed++
				ReconcileRuns.WithLabelValues(string(kind), OutcomeOK).Inc()
			}
			if len(ids) < r.batchSize {
				break
			}
			after = ids[len(ids)-1]
		}
	}
	return stats, nil
}
