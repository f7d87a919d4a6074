package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// InvalidFieldError reports a setup field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Service implements admin setup, login and session lookup.
type Service struct {
	repo   Repository
	tokens *Tokens
	cost   int
	// dummyHash is compared against when the email is unknown so that login
	// timing does not reveal which emails exist.
	dummyHash []byte
}

// NewService creates an admin auth Service.
func NewService(repo Repository, tokens *Tokens) *Service {
	s := &Service{repo: repo, tokens: tokens, cost: bcrypt.DefaultCost}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	return s
}

// Session is a signed-in admin.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Admin     *Admin
}

// Setup creates the first admin account. It fails with ErrSetupDone once any
// admin exists.
func (s *Service) Setup(ctx context.Context, email, password string) (*Admin, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, &InvalidFieldError{Field: "email", Reason: "must be a valid address"}
	}
	if len(password) < MinPasswordLength {
		return nil, &InvalidFieldError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	a := &Admin{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateFirst(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find admin")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Admin: a}, nil
}

// Authenticate verifies a bearer token and returns its claims.
func (s *Service) Authenticate(raw string) (*Claims, error) {
	return s.tokens.Parse(raw)
}

// Me returns the admin a verified token belongs to.
func (s *Service) Me(ctx context.Context, claims *Claims) (*Admin, error) {
	return s.repo.GetByID(ctx, claims.Subject)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
