package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon code applies to a subtotal.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Result, error)
}

// RepoValidator implements Validator by looking up coupons in a Repository.
// It never consumes a use; see Repository.Consume.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon and evaluates it. Unknown codes yield a
// non-applicable result with ReasonNotFound rather than an error; errors are
// reserved for storage failures.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return &Result{Reason: ReasonNotFound, DiscountAmount: decimal.Zero}, nil
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Result{Code: code, Reason: ReasonNotFound, DiscountAmount: decimal.Zero}, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	res := Evaluate(c, subtotal, v.now())
	return &res, nil
}
