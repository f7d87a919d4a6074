package coupon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCouponRepo struct {
	mockCouponRepo
	byCode map[string]*Coupon
}

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCouponRepo) Create(_ context.Context, c *Coupon) error {
	if _, ok := m.byCode[c.Code]; ok {
		return ErrAlreadyExists
	}
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *memCouponRepo) Update(_ context.Context, c *Coupon) error {
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func TestService_Create(t *testing.T) {
	repo := &memCouponRepo{byCode: map[string]*Coupon{}}
	svc := NewService(repo)
	ctx := context.Background()

	c := &Coupon{Code: " new10 ", Type: DiscountPercentage, Value: d("10"), UsedCount: 7, IsActive: true}
	require.NoError(t, svc.Create(ctx, c))
	assert.Equal(t, "NEW10", c.Code)
	assert.Zero(t, repo.byCode["NEW10"].UsedCount)

	err := svc.Create(ctx, &Coupon{Code: "new10", Type: DiscountFixed, Value: d("1")})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	var fe *InvalidFieldError
	require.ErrorAs(t, svc.Create(ctx, &Coupon{Code: "BAD", Type: DiscountPercentage, Value: d("150")}), &fe)
	assert.Equal(t, "value", fe.Field)
}

func TestService_UpdateKeepsUsage(t *testing.T) {
	repo := &memCouponRepo{byCode: map[string]*Coupon{
		"LIMITED": {Code: "LIMITED", Type: DiscountFixed, Value: d("2"), MaxUses: intPtr(10), UsedCount: 6, IsActive: true},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, &Coupon{Code: "limited", Type: DiscountFixed, Value: d("3"), MaxUses: intPtr(20)}))
	got := repo.byCode["LIMITED"]
	assert.Equal(t, 6, got.UsedCount)
	assert.True(t, d("3").Equal(got.Value))
	assert.False(t, got.IsActive)

	var fe *InvalidFieldError
	require.ErrorAs(t, svc.Update(ctx, &Coupon{Code: "LIMITED", Type: DiscountFixed, Value: d("3"), MaxUses: intPtr(5)}), &fe)
	assert.Equal(t, "maxUses", fe.Field)

	assert.ErrorIs(t, svc.Update(ctx, &Coupon{Code: "NOPE", Type: DiscountFixed, Value: d("1")}), ErrNotFound)
}
