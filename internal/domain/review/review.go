package review

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

var (
	// ErrNotFound is returned when a review does not exist.
	ErrNotFound = errors.New("review not found")
	// ErrNotOwner is returned when a user deletes someone else's review.
	ErrNotOwner = errors.New("review belongs to another user")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

const maxCommentLength = 2000

// Review is a customer's rating of a product. A user has at most one review
// per product.
type Review struct {
	ID          string
	ProductID   string
	UserID      string
	DisplayName string
	PhotoURL    string
	Rating      int
	Comment     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary aggregates the ratings of a product.
type Summary struct {
	Average decimal.Decimal
	Count   int
}

// Repository provides review persistence.
type Repository interface {
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
	Summarize(ctx context.Context, productID string) (Summary, error)
	// Upsert inserts r or replaces the rating and comment of the user's
	// existing review for the same product, returning the stored review.
	Upsert(ctx context.Context, r *Review) (*Review, error)
	GetByID(ctx context.Context, id string) (*Review, error)
	Delete(ctx context.Context, id string) error
}

// Service implements product reviews.
type Service struct {
	reviews  Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a review Service.
func NewService(reviews Repository, products product.Repository) *Service {
	return &Service{reviews: reviews, products: products, now: time.Now}
}

// List returns the reviews of a product together with their summary.
func (s *Service) List(ctx context.Context, productID string) ([]Review, Summary, error) {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, Summary{}, errors.Wrap(err, "list reviews")
	}
	sum, err := s.reviews.Summarize(ctx, productID)
	if err != nil {
		return nil, Summary{}, errors.Wrap(err, "summarize reviews")
	}
	sum.Average = sum.Average.Round(1)
	return reviews, sum, nil
}

// Submit creates or replaces the caller's review of a product.
func (s *Service) Submit(ctx context.Context, r *Review) (*Review, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return nil, ErrInvalidRating
	}
	r.Comment = strings.TrimSpace(r.Comment)
	if len([]rune(r.Comment)) > maxCommentLength {
		r.Comment = string([]rune(r.Comment)[:maxCommentLength])
	}
	if _, err := s.products.GetByID(ctx, r.ProductID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now
	return s.reviews.Upsert(ctx, r)
}

// Delete removes a review owned by userID.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return ErrNotOwner
	}
	return s.reviews.Delete(ctx, id)
}
