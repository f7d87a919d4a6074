package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/category"
)

const (
	categoryColumns = `id::text, name_en, name_km, icon, slug, created_at`

	listCategoriesSQL    = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name_en`
	getCategoryByIDSQL   = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	getCategoryBySlugSQL = `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`
	categoryExistsSQL    = `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`
	createCategorySQL    = `INSERT INTO categories (id, name_en, name_km, icon, slug, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	updateCategorySQL    = `UPDATE categories SET name_en = $2, name_km = $3, icon = $4, slug = $5 WHERE id = $1`
	deleteCategorySQL    = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns all categories ordered by English name.
func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetByID returns a category by ID.
func (r *CategoryRepository) GetByID(ctx context.Context, id category.ID) (*category.Category, error) {
	return r.getOne(ctx, getCategoryByIDSQL, id.String())
}

// GetBySlug returns a category by slug.
func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Category, error) {
	return r.getOne(ctx, getCategoryBySlugSQL, slug)
}

func (r *CategoryRepository) getOne(ctx context.Context, sql, arg string) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", arg, err)
	}
	return &c, nil
}

// Exists reports whether a category with id exists.
func (r *CategoryRepository) Exists(ctx context.Context, id category.ID) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, categoryExistsSQL, id.String()).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking category %s: %w", id, err)
	}
	return ok, nil
}

// Create inserts a category.
func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.pool.Exec(ctx, createCategorySQL,
		c.ID.String(), c.NameEN, c.NameKM, c.Icon, c.Slug, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return category.ErrSlugTaken
		}
		return fmt.Errorf("creating category: %w", err)
	}
	return nil
}

// Update replaces the editable fields of a category.
func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL,
		c.ID.String(), c.NameEN, c.NameKM, c.Icon, c.Slug,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return category.ErrSlugTaken
		}
		return fmt.Errorf("updating category %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// Delete removes a category. Products referencing it block the delete.
func (r *CategoryRepository) Delete(ctx context.Context, id category.ID) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id.String())
	if err != nil {
		if isForeignKeyViolation(err) {
			return category.ErrInUse
		}
		return fmt.Errorf("deleting category %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var (
		c  category.Category
		id string
	)
	if err := row.Scan(&id, &c.NameEN, &c.NameKM, &c.Icon, &c.Slug, &c.CreatedAt); err != nil {
		return c, err
	}
	parsed, err := category.ParseID(id)
	if err != nil {
		return c, err
	}
	c.ID = parsed
	return c, nil
}
