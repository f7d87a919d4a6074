package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/product"
)

const (
	productColumns = `id::text, name_en, name_km, description_en, description_km,
		price, sale_price, on_sale, image, images, category_id::text, in_stock, slug,
		created_at, updated_at`

	getProductByIDSQL    = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductBySlugSQL  = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	getProductsByIDsSQL  = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`
	productSlugExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE slug = $1 AND id::text <> $2)`

	createProductSQL = `INSERT INTO products (id, name_en, name_km, description_en, description_km,
		price, sale_price, on_sale, image, images, category_id, in_stock, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateProductSQL = `UPDATE products SET name_en = $2, name_km = $3, description_en = $4,
		description_km = $5, price = $6, sale_price = $7, on_sale = $8, image = $9, images = $10,
		category_id = $11, in_stock = $12, slug = $13, updated_at = $14
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	defaultListLimit = 50
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns products matching f, newest first. Text queries match either
// language of the name or the English description.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.CategoryID != nil {
		where = append(where, "category_id = "+arg(f.CategoryID.String()))
	}
	if f.OnSale {
		where = append(where, "on_sale")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(name_en ILIKE %[1]s OR name_km ILIKE %[1]s OR description_en ILIKE %[1]s)", p))
	}

	var b strings.Builder
	b.WriteString("SELECT " + productColumns + " FROM products")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	b.WriteString(" ORDER BY created_at DESC, id LIMIT " + arg(limit) + " OFFSET " + arg(max(f.Offset, 0)))

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if !validID(id) {
		return nil, product.ErrNotFound
	}
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetBySlug returns a single product by its slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, arg string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// SlugExists reports whether a product other than excludeID uses slug.
func (r *ProductRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, productSlugExistsSQL, slug, excludeID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking product slug %q: %w", slug, err)
	}
	return ok, nil
}

// Create inserts a product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	args := append(productArgs(p), p.CreatedAt, p.UpdatedAt)
	_, err := r.pool.Exec(ctx, createProductSQL, args...)
	if err != nil {
		return wrapProductWriteErr(err, "creating product")
	}
	return nil
}

// Update replaces the editable fields of a product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	args := append(productArgs(p), p.UpdatedAt)
	tag, err := r.pool.Exec(ctx, updateProductSQL, args...)
	if err != nil {
		return wrapProductWriteErr(err, "updating product")
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return product.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// productArgs returns the positional arguments shared by insert and update,
// id through slug.
func productArgs(p *product.Product) []any {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return []any{
		p.ID, p.NameEN, p.NameKM, p.DescriptionEN, p.DescriptionKM,
		p.Price, p.SalePrice, p.OnSale, p.Image, images, p.CategoryID.String(),
		p.InStock, p.Slug,
	}
}

func wrapProductWriteErr(err error, op string) error {
	switch {
	case isUniqueViolation(err):
		return product.ErrSlugTaken
	case isForeignKeyViolation(err):
		return category.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		salePrice  decimal.NullDecimal
		categoryID string
	)
	err := row.Scan(
		&p.ID, &p.NameEN, &p.NameKM, &p.DescriptionEN, &p.DescriptionKM,
		&p.Price, &salePrice, &p.OnSale, &p.Image, &p.Images, &categoryID, &p.InStock, &p.Slug,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if salePrice.Valid {
		p.SalePrice = &salePrice.Decimal
	}
	if p.CategoryID, err = category.ParseID(categoryID); err != nil {
		return p, err
	}
	return p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
