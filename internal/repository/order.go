package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/order"
)

const (
	orderColumns = `id::text, order_number, user_id, coupon_code, discount, customer, items,
		payment_method, payment_status, payment_url, order_status, subtotal, total,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, coupon_code, discount, customer, items,
		payment_method, payment_status, payment_url, order_status, subtotal, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getOrderByIDSQL      = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	listOrdersByUserSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	orderExistsSQL       = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
	updateOrderStatusSQL = `UPDATE orders SET order_status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND order_status = $4 AND payment_status = $5`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The coupon use is consumed in the same
// transaction so a rejected insert never burns a use and an exhausted coupon
// never produces an order. Customer and items are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (rerr error) {
	customerJSON, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("marshaling order customer: %w", err)
	}
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if o.CouponCode != "" {
		red, err := consumeCoupon(ctx, tx, o.CouponCode)
		if err != nil {
			return err
		}
		if red == coupon.AlreadyExhausted {
			return errors.Wrapf(coupon.ErrUsageLimitReached, "coupon %q", o.CouponCode)
		}
	}

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.UserID, o.CouponCode, o.Discount, customerJSON, itemsJSON,
		string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentURL, string(o.OrderStatus),
		o.Subtotal, o.Total, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("creating order %q: %w", o.OrderNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.OrderNumber, err)
	}
	return nil
}

// GetByID returns an order by its UUID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns an order by its human-readable number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// List returns orders for the admin view, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.OrderStatus != "" {
		where = append(where, "order_status = "+arg(string(f.OrderStatus)))
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = "+arg(string(f.PaymentStatus)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + orderColumns + " FROM orders")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	b.WriteString(" ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(max(f.Offset, 0)))

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByUser returns the orders of a customer, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus writes next when the stored statuses still equal prev.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, prev, next order.State) error {
	if !validID(id) {
		return order.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id,
		string(next.Order), string(next.Payment), string(prev.Order), string(prev.Payment),
	)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                         order.Order
		customerJSON, itemsJSON                   []byte
		paymentMethod, paymentStatus, orderStatus string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.CouponCode, &o.Discount, &customerJSON, &itemsJSON,
		&paymentMethod, &paymentStatus, &o.PaymentURL, &orderStatus, &o.Subtotal, &o.Total,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.OrderStatus = order.OrderStatus(orderStatus)

	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return o, fmt.Errorf("unmarshaling order customer: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return o, nil
}
