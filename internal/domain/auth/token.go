package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an admin session token is valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims are the JWT claims of an admin session.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 admin session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. A zero ttl selects DefaultTokenTTL.
func NewTokens(secret []byte, ttl time.Duration) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for a.
func (t *Tokens) Issue(a *Admin) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: a.Email,
		Role:  RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Parse verifies raw and returns its claims. Tokens without the admin role
// are rejected.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Role != RoleAdmin || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
