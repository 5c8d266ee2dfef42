package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository"
	"github.com/utafrali/storefront-ratings/pkg/database"
	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

// EntityRepository keeps the products and stores tables. Ratings are stored as
// NUMERIC(2,1) and moved in and out as integer tenths.
type EntityRepository struct {
	pool database.DBTX
}

func NewEntityRepository(pool database.DBTX) *EntityRepository {
	return &EntityRepository{pool: pool}
}

var _ repository.EntityRepository = (*EntityRepository)(nil)

func (r *EntityRepository) Register(ctx context.Context, ref domain.EntityRef) (err error) {
	table, err := entityTable(ref.Kind)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "RegisterEntity", query)
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, query, ref.ID); err != nil {
		return fmt.Errorf("register %s: %w", ref, err)
	}
	return nil
}

func (r *EntityRepository) Remove(ctx context.Context, ref domain.EntityRef) (err error) {
	table, err := entityTable(ref.Kind)
	if err != nil {
		return err
	}
	query := `DELETE FROM ` + table + ` WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "RemoveEntity", query)
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, query, ref.ID); err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	return nil
}

func (r *EntityRepository) GetAggregate(ctx context.Context, ref domain.EntityRef) (_ domain.Aggregate, err error) {
	table, err := entityTable(ref.Kind)
	if err != nil {
		return domain.Aggregate{}, err
	}
	query := `SELECT (rating * 10)::int, review_count FROM ` + table + ` WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetAggregate", query)
	defer func() { end(err) }()

	var agg domain.Aggregate
	err = r.pool.QueryRow(ctx, query, ref.ID).Scan(&agg.RatingTenths, &agg.ReviewCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Aggregate{}, apperrors.NotFound(string(ref.Kind), ref.ID)
	}
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("get aggregate for %s: %w", ref, err)
	}
	return agg, nil
}

// ApplyAggregate overwrites both fields. It never adjusts them incrementally.
func (r *EntityRepository) ApplyAggregate(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) (err error) {
	table, err := entityTable(ref.Kind)
	if err != nil {
		return err
	}
	query := `UPDATE ` + table + `
		SET rating = $2::numeric / 10, review_count = $3, updated_at = NOW()
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "ApplyAggregate", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, ref.ID, agg.RatingTenths, agg.ReviewCount)
	if err != nil {
		return fmt.Errorf("apply aggregate to %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(string(ref.Kind), ref.ID)
	}
	return nil
}

func (r *EntityRepository) ListIDs(ctx context.Context, kind domain.EntityKind, after string, limit int) (_ []string, err error) {
	table, err := entityTable(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT id FROM ` + table + ` WHERE id > $1 ORDER BY id LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListEntityIDs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s ids: %w", kind, err)
	}
	return ids, nil
}
