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

const reviewColumns = `id, author_id, product_id, store_id, order_id, rating, title, comment,
	images, is_verified_purchase, is_active, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository on PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) (err error) {
	const query = `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	images := review.Images
	if images == nil {
		images = []string{}
	}
	_, err = r.pool.Exec(ctx, query,
		review.ID,
		review.AuthorID,
		review.ProductID,
		review.StoreID,
		review.OrderID,
		review.Rating,
		review.Title,
		review.Comment,
		images,
		review.IsVerifiedPurchase,
		review.IsActive,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	const query = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReview", query)
	defer func() { end(err) }()

	review, err := scanReview(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return review, nil
}

// Update locks the row in a CTE so the previous references and the new
// document come from the same statement.
func (r *ReviewRepository) Update(ctx context.Context, id string, patch *domain.ReviewPatch) (_ *domain.ReviewUpdate, err error) {
	const query = `
		WITH prev AS (
			SELECT id, product_id, store_id FROM reviews WHERE id = $1 FOR UPDATE
		)
		UPDATE reviews r SET
			rating     = COALESCE($2, r.rating),
			title      = COALESCE($3, r.title),
			comment    = COALESCE($4, r.comment),
			images     = COALESCE($5, r.images),
			is_active  = COALESCE($6, r.is_active),
			product_id = COALESCE($7, r.product_id),
			store_id   = COALESCE($8, r.store_id),
			updated_at = NOW()
		FROM prev
		WHERE r.id = prev.id
		RETURNING r.id, r.author_id, r.product_id, r.store_id, r.order_id, r.rating, r.title,
			r.comment, r.images, r.is_verified_purchase, r.is_active, r.created_at, r.updated_at,
			prev.product_id, prev.store_id`

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	var prevProduct, prevStore *string
	review, err := scanReview(
		r.pool.QueryRow(ctx, query, id,
			patch.Rating, patch.Title, patch.Comment, patch.Images,
			patch.IsActive, patch.ProductID, patch.StoreID,
		),
		&prevProduct, &prevStore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update review %s: %w", id, err)
	}

	previous := domain.Review{ProductID: prevProduct, StoreID: prevStore}
	return &domain.ReviewUpdate{Review: review, PreviousRefs: previous.Refs()}, nil
}

func (r *ReviewRepository) ListByEntity(ctx context.Context, filter repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	column, err := refColumn(filter.Entity.Kind)
	if err != nil {
		return nil, 0, err
	}
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	query := `
		SELECT ` + reviewColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE ` + column + ` = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListReviewsByEntity", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, filter.Entity.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	total := 0
	for rows.Next() {
		rv, err := scanReview(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, total, nil
}

func (r *ReviewRepository) ListActiveRatings(ctx context.Context, ref domain.EntityRef) (_ []int, err error) {
	column, err := refColumn(ref.Kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT rating FROM reviews WHERE ` + column + ` = $1 AND is_active`

	ctx, end := database.TraceQuery(ctx, "ListActiveRatings", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list active ratings for %s: %w", ref, err)
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

func scanReview(row pgx.Row, extra ...any) (*domain.Review, error) {
	var rv domain.Review
	dest := []any{
		&rv.ID,
		&rv.AuthorID,
		&rv.ProductID,
		&rv.StoreID,
		&rv.OrderID,
		&rv.Rating,
		&rv.Title,
		&rv.Comment,
		&rv.Images,
		&rv.IsVerifiedPurchase,
		&rv.IsActive,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &rv, nil
}

func refColumn(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.EntityProduct:
		return "product_id", nil
	case domain.EntityStore:
		return "store_id", nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown entity kind %q", kind))
	}
}

func entityTable(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.EntityProduct:
		return "products", nil
	case domain.EntityStore:
		return "stores", nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown entity kind %q", kind))
	}
}
