package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/pkg/slug"
)

const maxSlugAttempts = 20

// InvalidFieldError reports a product field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Service implements the catalog write path and search-aware listing.
type Service struct {
	products   Repository
	categories category.Repository
	index      Index
	now        func() time.Time
}

// NewService creates a catalog Service. index may be nil, in which case
// text queries fall back to the repository.
func NewService(products Repository, categories category.Repository, index Index) *Service {
	return &Service{
		products:   products,
		categories: categories,
		index:      index,
		now:        time.Now,
	}
}

// List returns products matching f. Text queries go to the search index
// when one is configured; an index failure degrades to repository search.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	if f.Query == "" || s.index == nil || f.CategoryID != nil || f.OnSale {
		return s.products.List(ctx, f)
	}

	ids, err := s.index.Search(ctx, f.Query, f.Limit, f.Offset)
	if err != nil {
		zctx.From(ctx).Warn("Search index query failed, using database", zap.Error(err))
		return s.products.List(ctx, f)
	}
	if len(ids) == 0 {
		return []Product{}, nil
	}

	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get returns a product by slug, or by ID for links that predate slugs.
func (s *Service) Get(ctx context.Context, ref string) (*Product, error) {
	p, err := s.products.GetBySlug(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, perr := uuid.Parse(ref); perr != nil {
		return nil, err
	}
	return s.products.GetByID(ctx, ref)
}

// Create validates p, verifies its category, assigns an ID and a unique slug
// and stores it.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := s.check(ctx, p); err != nil {
		return err
	}

	sl, err := s.uniqueSlug(ctx, p.NameEN, "")
	if err != nil {
		return err
	}

	now := s.now().UTC()
	p.ID = uuid.New().String()
	p.Slug = sl
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.products.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	s.reindex(ctx, p)
	return nil
}

// Update replaces the editable fields of an existing product. The slug is
// regenerated only when the English name changes.
func (s *Service) Update(ctx context.Context, p *Product) error {
	existing, err := s.products.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.check(ctx, p); err != nil {
		return err
	}

	p.Slug = existing.Slug
	if p.NameEN != existing.NameEN {
		if p.Slug, err = s.uniqueSlug(ctx, p.NameEN, p.ID); err != nil {
			return err
		}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()

	if err := s.products.Update(ctx, p); err != nil {
		return errors.Wrap(err, "update product")
	}
	s.reindex(ctx, p)
	return nil
}

// Delete removes a product. Order snapshots keep their copy of it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			zctx.From(ctx).Warn("Remove product from search index",
				zap.String("product_id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) check(ctx context.Context, p *Product) error {
	p.NameEN = strings.TrimSpace(p.NameEN)
	p.NameKM = strings.TrimSpace(p.NameKM)
	switch {
	case p.NameEN == "":
		return &InvalidFieldError{Field: "nameEn", Reason: "required"}
	case slug.Make(p.NameEN) == "":
		return &InvalidFieldError{Field: "nameEn", Reason: "must contain latin letters or digits"}
	case p.Price.IsNegative():
		return &InvalidFieldError{Field: "price", Reason: "must not be negative"}
	case p.SalePrice != nil && p.SalePrice.IsNegative():
		return &InvalidFieldError{Field: "salePrice", Reason: "must not be negative"}
	case p.CategoryID.IsZero():
		return &InvalidFieldError{Field: "categoryId", Reason: "required"}
	}

	ok, err := s.categories.Exists(ctx, p.CategoryID)
	if err != nil {
		return errors.Wrap(err, "check category")
	}
	if !ok {
		return errors.Wrapf(category.ErrNotFound, "category %s", p.CategoryID)
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, name, excludeID string) (string, error) {
	base := slug.Make(name)
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := slug.Candidate(base, attempt)
		taken, err := s.products.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", errors.Wrap(err, "check slug")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrSlugTaken, "slug %q", base)
}

func (s *Service) reindex(ctx context.Context, p *Product) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, p); err != nil {
		zctx.From(ctx).Warn("Index product",
			zap.String("product_id", p.ID), zap.Error(err))
	}
}
