package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Service implements customer accounts.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a user Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SignIn records a verified identity, creating the account on first use.
func (s *Service) SignIn(ctx context.Context, u *User) (*User, error) {
	if strings.TrimSpace(u.UID) == "" {
		return nil, errors.New("uid required")
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Addresses == nil {
		u.Addresses = []Address{}
	}
	out, err := s.repo.Upsert(ctx, u)
	if err != nil {
		return nil, errors.Wrap(err, "upsert user")
	}
	return out, nil
}

// Profile returns the account of uid.
func (s *Service) Profile(ctx context.Context, uid string) (*User, error) {
	return s.repo.Get(ctx, uid)
}

// UpdateProfile applies customer edits to the account of uid.
func (s *Service) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) (*User, error) {
	if err := upd.Check(); err != nil {
		return nil, err
	}
	return s.repo.UpdateProfile(ctx, uid, upd)
}
