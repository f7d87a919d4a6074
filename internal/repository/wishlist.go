package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/domain/wishlist"
)

const (
	listWishlistSQL = `SELECT ` + productColumnsQualified + `
		FROM wishlist_items w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`

	addWishlistSQL = `INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`

	removeWishlistSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`

	productColumnsQualified = `p.id::text, p.name_en, p.name_km, p.description_en, p.description_km,
		p.price, p.sale_price, p.on_sale, p.image, p.images, p.category_id::text, p.in_stock, p.slug,
		p.created_at, p.updated_at`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	pool *pgxpool.Pool
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{pool: pool}
}

// List returns the products saved by a user.
func (r *WishlistRepository) List(ctx context.Context, userID string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Add saves a product. Saving it twice is a no-op.
func (r *WishlistRepository) Add(ctx context.Context, userID, productID string) error {
	if !validID(productID) {
		return product.ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, addWishlistSQL, userID, productID); err != nil {
		if isForeignKeyViolation(err) {
			return product.ErrNotFound
		}
		return fmt.Errorf("adding %q to wishlist: %w", productID, err)
	}
	return nil
}

// Remove forgets a saved product. Removing a missing item is a no-op.
func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	if !validID(productID) {
		return nil
	}
	if _, err := r.pool.Exec(ctx, removeWishlistSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from wishlist: %w", productID, err)
	}
	return nil
}
