package wishlist

import (
	"context"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

// Repository stores the set of products a user saved.
type Repository interface {
	// List returns the saved products, most recently added first.
	List(ctx context.Context, userID string) ([]product.Product, error)
	// Add is idempotent.
	Add(ctx context.Context, userID, productID string) error
	// Remove is idempotent.
	Remove(ctx context.Context, userID, productID string) error
}

// Service implements the customer wishlist.
type Service struct {
	items    Repository
	products product.Repository
}

// NewService creates a wishlist Service.
func NewService(items Repository, products product.Repository) *Service {
	return &Service{items: items, products: products}
}

// List returns the user's saved products.
func (s *Service) List(ctx context.Context, userID string) ([]product.Product, error) {
	return s.items.List(ctx, userID)
}

// Add saves a product after checking it exists.
func (s *Service) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.items.Add(ctx, userID, productID)
}

// Remove forgets a saved product.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.items.Remove(ctx, userID, productID)
}
