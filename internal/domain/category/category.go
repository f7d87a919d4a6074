// Package category defines storefront product categories.
package category

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrSlugTaken is returned when another category already uses the slug.
	ErrSlugTaken = errors.New("category slug already exists")
	// ErrInUse is returned when deleting a category that products reference.
	ErrInUse = errors.New("category is referenced by products")
)

// ID identifies a category. Products reference categories by this type
// rather than by a bare string.
type ID uuid.UUID

// NewID returns a random category ID.
func NewID() ID { return ID(uuid.New()) }

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, errors.Wrap(err, "parse category id")
	}
	return ID(u), nil
}

func (id ID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// Category groups products in the storefront navigation.
type Category struct {
	ID        ID
	NameEN    string
	NameKM    string
	Icon      string
	Slug      string
	CreatedAt time.Time
}

// Repository provides category persistence.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id ID) (*Category, error)
	GetBySlug(ctx context.Context, slug string) (*Category, error)
	Exists(ctx context.Context, id ID) (bool, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id ID) error
}
