package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
)

const (
	couponColumns = `code, type, value, min_order, max_uses, used_count, expires_at, is_active, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC`

	createCouponSQL = `INSERT INTO coupons (code, type, value, min_order, max_uses, used_count, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateCouponSQL = `UPDATE coupons SET type = $2, value = $3, min_order = $4, max_uses = $5,
		expires_at = $6, is_active = $7
		WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`

	// upsertCouponSQL keeps the usage counter of existing codes and never
	// lowers max_uses below it.
	upsertCouponSQL = `INSERT INTO coupons (code, type, value, min_order, max_uses, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type, value = EXCLUDED.value, min_order = EXCLUDED.min_order,
			max_uses = CASE WHEN EXCLUDED.max_uses IS NULL THEN NULL
				ELSE GREATEST(EXCLUDED.max_uses, coupons.used_count) END,
			expires_at = EXCLUDED.expires_at, is_active = EXCLUDED.is_active`

	// consumeCouponSQL increments the counter only while the coupon is still
	// redeemable. Zero affected rows means another checkout took the last use.
	consumeCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (max_uses IS NULL OR used_count < max_uses)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.Code, string(c.Type), c.Value, c.MinOrder, c.MaxUses, c.UsedCount, c.ExpiresAt, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrAlreadyExists
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces a coupon definition. The usage counter is never written.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, string(c.Type), c.Value, c.MinOrder, c.MaxUses, c.ExpiresAt, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert inserts or refreshes coupons in one batch and returns how many rows
// were written. Used by bulk imports.
func (r *CouponRepository) Upsert(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for i := range coupons {
		c := &coupons[i]
		batch.Queue(upsertCouponSQL,
			c.Code, string(c.Type), c.Value, c.MinOrder, c.MaxUses, c.ExpiresAt, c.IsActive,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var n int
	for i := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return n, fmt.Errorf("upserting coupon %q: %w", coupons[i].Code, err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

// Consume atomically takes one use of the coupon.
func (r *CouponRepository) Consume(ctx context.Context, code string) (coupon.Redemption, error) {
	return consumeCoupon(ctx, r.pool, code)
}

func consumeCoupon(ctx context.Context, q querier, code string) (coupon.Redemption, error) {
	tag, err := q.Exec(ctx, consumeCouponSQL, code)
	if err != nil {
		return 0, fmt.Errorf("consuming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.AlreadyExhausted, nil
	}
	return coupon.Consumed, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.Code, &typ, &c.Value, &c.MinOrder, &c.MaxUses, &c.UsedCount,
		&c.ExpiresAt, &c.IsActive, &c.CreatedAt,
	)
	c.Type = coupon.DiscountType(typ)
	return c, err
}
