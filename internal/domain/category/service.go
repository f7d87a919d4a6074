package category

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/angkor-mart/storefront/pkg/slug"
)

const maxSlugAttempts = 20

// InvalidFieldError reports a category field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Service implements category management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a category Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns all categories.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Get returns a category by slug.
func (s *Service) Get(ctx context.Context, sl string) (*Category, error) {
	return s.repo.GetBySlug(ctx, sl)
}

// Create stores a new category with a unique slug derived from NameEN.
func (s *Service) Create(ctx context.Context, c *Category) error {
	if err := check(c); err != nil {
		return err
	}
	sl, err := s.uniqueSlug(ctx, c.NameEN, ID{})
	if err != nil {
		return err
	}
	c.ID = NewID()
	c.Slug = sl
	c.CreatedAt = s.now().UTC()
	return s.repo.Create(ctx, c)
}

// Update edits an existing category. The slug follows NameEN changes.
func (s *Service) Update(ctx context.Context, c *Category) error {
	existing, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := check(c); err != nil {
		return err
	}
	c.Slug = existing.Slug
	if c.NameEN != existing.NameEN {
		if c.Slug, err = s.uniqueSlug(ctx, c.NameEN, c.ID); err != nil {
			return err
		}
	}
	c.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, c)
}

// Delete removes a category. It fails with ErrInUse while products
// reference it.
func (s *Service) Delete(ctx context.Context, id ID) error {
	return s.repo.Delete(ctx, id)
}

func check(c *Category) error {
	c.NameEN = strings.TrimSpace(c.NameEN)
	c.NameKM = strings.TrimSpace(c.NameKM)
	c.Icon = strings.TrimSpace(c.Icon)
	if c.NameEN == "" {
		return &InvalidFieldError{Field: "nameEn", Reason: "required"}
	}
	if slug.Make(c.NameEN) == "" {
		return &InvalidFieldError{Field: "nameEn", Reason: "must contain latin letters or digits"}
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string, self ID) (string, error) {
	base := slug.Make(name)
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		candidate := slug.Candidate(base, attempt)
		c, err := s.repo.GetBySlug(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", errors.Wrap(err, "check slug")
		}
		if c.ID == self {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrSlugTaken, "slug %q", base)
}
