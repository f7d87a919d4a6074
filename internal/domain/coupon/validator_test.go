package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon     *Coupon
	err        error
	lookupCode string
	consumed   int
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookupCode = code
	return m.coupon, m.err
}

func (m *mockCouponRepo) List(context.Context) ([]Coupon, error) { return nil, nil }
func (m *mockCouponRepo) Create(context.Context, *Coupon) error  { return nil }
func (m *mockCouponRepo) Update(context.Context, *Coupon) error  { return nil }
func (m *mockCouponRepo) Delete(context.Context, string) error   { return nil }
func (m *mockCouponRepo) Consume(context.Context, string) (Redemption, error) {
	m.consumed++
	return Consumed, nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int { return &v }

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		subtotal   decimal.Decimal
		applicable bool
		reason     Reason
		wantAmount decimal.Decimal
	}{
		{
			name: "percentage SAVE10 on 50.00",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "SAVE10", Type: DiscountPercentage, Value: d("10"), MinOrder: d("20"), IsActive: true,
			}},
			code:       "save10",
			subtotal:   d("50.00"),
			applicable: true,
			wantAmount: d("5.00"),
		},
		{
			name: "fixed FLAT5 below minimum",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "FLAT5", Type: DiscountFixed, Value: d("5"), MinOrder: d("20"), IsActive: true,
			}},
			code:     "FLAT5",
			subtotal: d("10.00"),
			reason:   ReasonBelowMinimum,
		},
		{
			name:     "unknown code",
			repo:     &mockCouponRepo{err: ErrNotFound},
			code:     "BOGUS",
			subtotal: d("10"),
			reason:   ReasonNotFound,
		},
		{
			name: "inactive coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "OFF", Type: DiscountFixed, Value: d("5"), IsActive: false,
			}},
			code:     "OFF",
			subtotal: d("100"),
			reason:   ReasonInactive,
		},
		{
			name: "expired coupon wins over everything else",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "OLD", Type: DiscountPercentage, Value: d("10"), IsActive: true,
				ExpiresAt: &past, MaxUses: intPtr(1), UsedCount: 1,
			}},
			code:     "OLD",
			subtotal: d("100"),
			reason:   ReasonExpired,
		},
		{
			name: "future expiry is applicable",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "SOON", Type: DiscountPercentage, Value: d("10"), IsActive: true, ExpiresAt: &future,
			}},
			code:       "SOON",
			subtotal:   d("100"),
			applicable: true,
			wantAmount: d("10"),
		},
		{
			name: "used count equals max uses",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "LIMITED", Type: DiscountPercentage, Value: d("10"), IsActive: true,
				MaxUses: intPtr(100), UsedCount: 100,
			}},
			code:     "LIMITED",
			subtotal: d("100"),
			reason:   ReasonExhausted,
		},
		{
			name: "uses remaining",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "ROOM", Type: DiscountFixed, Value: d("7.50"), IsActive: true,
				MaxUses: intPtr(100), UsedCount: 99,
			}},
			code:       "ROOM",
			subtotal:   d("100"),
			applicable: true,
			wantAmount: d("7.50"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.subtotal)
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, tt.applicable, got.Applicable)
			assert.Equal(t, tt.reason, got.Reason)
			if tt.applicable {
				assert.True(t, tt.wantAmount.Equal(got.DiscountAmount),
					"expected amount %s, got %s", tt.wantAmount, got.DiscountAmount)
			} else {
				assert.True(t, got.DiscountAmount.IsZero())
			}
		})
	}
}

func TestRepoValidator_NormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{err: ErrNotFound}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "  save10 ", d("10"))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookupCode)
}

func TestRepoValidator_NeverConsumes(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		Code: "SAVE10", Type: DiscountPercentage, Value: d("10"), IsActive: true, MaxUses: intPtr(1),
	}}
	v := NewRepoValidator(repo)

	for range 3 {
		res, err := v.Validate(context.Background(), "SAVE10", d("50"))
		require.NoError(t, err)
		assert.True(t, res.Applicable)
	}
	assert.Zero(t, repo.consumed)
}

func TestRepoValidator_StorageError(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("connection refused")}
	v := NewRepoValidator(repo)

	got, err := v.Validate(context.Background(), "ANY", d("10"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestRepoValidator_EmptyCode(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo)

	got, err := v.Validate(context.Background(), "   ", d("10"))
	require.NoError(t, err)
	assert.False(t, got.Applicable)
	assert.Equal(t, ReasonNotFound, got.Reason)
	assert.Empty(t, repo.lookupCode)
}
