package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/angkor-mart/storefront/internal/domain/category"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrSlugTaken is returned when the slug is already used by another product.
	ErrSlugTaken = errors.New("product slug already exists")
)

// Product is a catalog item with bilingual (English/Khmer) content.
type Product struct {
	ID            string
	NameEN        string
	NameKM        string
	DescriptionEN string
	DescriptionKM string
	Price         decimal.Decimal
	SalePrice     *decimal.Decimal
	OnSale        bool
	Image         string
	Images        []string
	CategoryID    category.ID
	InStock       bool
	Slug          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice is the unit price charged at checkout: the sale price when
// the product is on sale and the sale price undercuts the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OnSale && p.SalePrice != nil && p.SalePrice.LessThan(p.Price) && !p.SalePrice.IsNegative() {
		return *p.SalePrice
	}
	return p.Price
}

// Filter narrows a product listing.
type Filter struct {
	CategoryID *category.ID
	Query      string
	OnSale     bool
	Limit      int
	Offset     int
}

// Repository defines product persistence.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

// Index is a full-text search index over products.
type Index interface {
	Index(ctx context.Context, p *Product) error
	Remove(ctx context.Context, id string) error
	// Search returns matching product IDs ordered by relevance.
	Search(ctx context.Context, query string, limit, offset int) ([]string, error)
}
