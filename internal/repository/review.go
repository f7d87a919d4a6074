package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/domain/review"
)

const (
	reviewColumns = `id::text, product_id::text, user_id, display_name, photo_url, rating, comment, created_at, updated_at`

	listReviewsByProductSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`
	getReviewSQL            = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`
	summarizeReviewsSQL     = `SELECT COALESCE(AVG(rating), 0)::numeric, COUNT(*) FROM reviews WHERE product_id = $1`
	deleteReviewSQL         = `DELETE FROM reviews WHERE id = $1`

	upsertReviewSQL = `INSERT INTO reviews (id, product_id, user_id, display_name, photo_url, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			display_name = EXCLUDED.display_name,
			photo_url = EXCLUDED.photo_url,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + reviewColumns
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// ListByProduct returns the reviews of a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	if !validID(productID) {
		return []review.Review{}, nil
	}
	rows, err := r.pool.Query(ctx, listReviewsByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews of %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanReview)
}

// Summarize returns the average rating and review count of a product.
func (r *ReviewRepository) Summarize(ctx context.Context, productID string) (review.Summary, error) {
	var s review.Summary
	if !validID(productID) {
		return s, nil
	}
	if err := r.pool.QueryRow(ctx, summarizeReviewsSQL, productID).Scan(&s.Average, &s.Count); err != nil {
		return s, fmt.Errorf("summarizing reviews of %q: %w", productID, err)
	}
	return s, nil
}

// Upsert inserts a review or replaces the user's existing one.
func (r *ReviewRepository) Upsert(ctx context.Context, rv *review.Review) (*review.Review, error) {
	if !validID(rv.ProductID) {
		return nil, product.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, upsertReviewSQL,
		rv.ID, rv.ProductID, rv.UserID, rv.DisplayName, rv.PhotoURL, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting review: %w", err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("upserting review: %w", err)
	}
	return &out, nil
}

// GetByID returns a review.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	if !validID(id) {
		return nil, review.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getReviewSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting review %q: %w", id, err)
	}
	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("getting review %q: %w", id, err)
	}
	return &rv, nil
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteReviewSQL, id)
	if err != nil {
		return fmt.Errorf("deleting review %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var rv review.Review
	err := row.Scan(
		&rv.ID, &rv.ProductID, &rv.UserID, &rv.DisplayName, &rv.PhotoURL,
		&rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt,
	)
	return rv, err
}
