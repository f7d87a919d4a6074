package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrAlreadyExists is returned when creating a coupon whose code is taken.
	ErrAlreadyExists = errors.New("coupon code already exists")
	// ErrUsageLimitReached is returned when a coupon was exhausted between
	// validation and consumption.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// Reason explains why a coupon is not applicable.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonInactive     Reason = "inactive"
	ReasonExpired      Reason = "expired"
	ReasonExhausted    Reason = "exhausted"
	ReasonBelowMinimum Reason = "below_minimum"
)

// Message returns a customer-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "invalid coupon code"
	case ReasonInactive:
		return "coupon is no longer active"
	case ReasonExpired:
		return "coupon expired"
	case ReasonExhausted:
		return "coupon usage limit reached"
	case ReasonBelowMinimum:
		return "order subtotal is below the coupon minimum"
	default:
		return string(r)
	}
}

// Coupon is a discount code redeemable at checkout.
type Coupon struct {
	Code      string
	Type      DiscountType
	Value     decimal.Decimal
	MinOrder  decimal.Decimal
	MaxUses   *int
	UsedCount int
	ExpiresAt *time.Time
	IsActive  bool
	CreatedAt time.Time
}

// NormalizeCode uppercases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InvalidFieldError reports a coupon field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Check validates the coupon definition before it is stored.
func (c *Coupon) Check() error {
	if c.Code == "" {
		return &InvalidFieldError{Field: "code", Reason: "required"}
	}
	switch c.Type {
	case DiscountPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return &InvalidFieldError{Field: "value", Reason: "percentage must be in (0, 100]"}
		}
	case DiscountFixed:
		if !c.Value.IsPositive() {
			return &InvalidFieldError{Field: "value", Reason: "must be greater than 0"}
		}
	default:
		return &InvalidFieldError{Field: "type", Reason: "must be percentage or fixed"}
	}
	if c.MinOrder.IsNegative() {
		return &InvalidFieldError{Field: "minOrder", Reason: "must not be negative"}
	}
	if c.MaxUses != nil && *c.MaxUses <= 0 {
		return &InvalidFieldError{Field: "maxUses", Reason: "must be greater than 0"}
	}
	if c.MaxUses != nil && c.UsedCount > *c.MaxUses {
		return &InvalidFieldError{Field: "maxUses", Reason: "must not be below usedCount"}
	}
	return nil
}

// Redemption is the outcome of an atomic coupon consumption.
type Redemption int

const (
	// Consumed means the usage counter was incremented.
	Consumed Redemption = iota + 1
	// AlreadyExhausted means the coupon had no uses left (or was
	// deactivated) at consumption time, and nothing changed.
	AlreadyExhausted
)

func (r Redemption) String() string {
	switch r {
	case Consumed:
		return "consumed"
	case AlreadyExhausted:
		return "already_exhausted"
	default:
		return "unknown"
	}
}

// Repository provides coupon persistence.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
	// Consume increments the usage counter only while uses remain.
	Consume(ctx context.Context, code string) (Redemption, error)
}
