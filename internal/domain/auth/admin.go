package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an admin does not exist.
	ErrNotFound = errors.New("admin not found")
	// ErrSetupDone is returned when setup runs after an admin already exists.
	ErrSetupDone = errors.New("admin already configured")
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned for a malformed, forged or expired token.
	ErrInvalidToken = errors.New("invalid token")
)

// RoleAdmin is the only role carried by admin tokens.
const RoleAdmin = "admin"

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 8

// Admin is a back-office account.
type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository provides admin persistence.
type Repository interface {
	// CreateFirst stores a only if no admin exists yet, otherwise it
	// returns ErrSetupDone.
	CreateFirst(ctx context.Context, a *Admin) error
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	GetByID(ctx context.Context, id string) (*Admin, error)
}
