package coupon

import (
	"context"
	"time"
)

// Service implements coupon administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon admin Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// Get returns a coupon by code.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	return s.repo.FindByCode(ctx, NormalizeCode(code))
}

// Create stores a new coupon. The usage counter always starts at zero.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	c.UsedCount = 0
	if err := c.Check(); err != nil {
		return err
	}
	c.CreatedAt = s.now().UTC()
	return s.repo.Create(ctx, c)
}

// Update replaces the definition of an existing coupon, keeping its usage
// counter.
func (s *Service) Update(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	existing, err := s.repo.FindByCode(ctx, c.Code)
	if err != nil {
		return err
	}
	c.UsedCount = existing.UsedCount
	c.CreatedAt = existing.CreatedAt
	if err := c.Check(); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

// Delete removes a coupon. Orders keep the code they were placed with.
func (s *Service) Delete(ctx context.Context, code string) error {
	return s.repo.Delete(ctx, NormalizeCode(code))
}
