package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
)

type couponBody struct {
	Code      string              `json:"code"`
	Type      coupon.DiscountType `json:"type"`
	Value     decimal.Decimal     `json:"value"`
	MinOrder  decimal.Decimal     `json:"minOrder"`
	MaxUses   *int                `json:"maxUses"`
	ExpiresAt *time.Time          `json:"expiresAt"`
	IsActive  *bool               `json:"isActive"`
}

type couponResponse struct {
	Code      string              `json:"code"`
	Type      coupon.DiscountType `json:"type"`
	Value     Money               `json:"value"`
	MinOrder  Money               `json:"minOrder"`
	MaxUses   *int                `json:"maxUses"`
	UsedCount int                 `json:"usedCount"`
	ExpiresAt *time.Time          `json:"expiresAt"`
	IsActive  bool                `json:"isActive"`
	CreatedAt time.Time           `json:"createdAt"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		Code:      c.Code,
		Type:      c.Type,
		Value:     money(c.Value),
		MinOrder:  money(c.MinOrder),
		MaxUses:   c.MaxUses,
		UsedCount: c.UsedCount,
		ExpiresAt: c.ExpiresAt,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}

func (b *couponBody) toDomain() *coupon.Coupon {
	active := true
	if b.IsActive != nil {
		active = *b.IsActive
	}
	return &coupon.Coupon{
		Code:      b.Code,
		Type:      b.Type,
		Value:     b.Value,
		MinOrder:  b.MinOrder,
		MaxUses:   b.MaxUses,
		ExpiresAt: b.ExpiresAt,
		IsActive:  active,
	}
}

// ListCoupons returns every coupon.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Coupons.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]couponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCoupon returns a coupon by code.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Coupons.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

// CreateCoupon defines a new coupon.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c := req.toDomain()
	if err := h.Coupons.Create(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

// UpdateCoupon replaces a coupon definition. The code in the path wins over
// the body.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c := req.toDomain()
	c.Code = mux.Vars(r)["code"]
	if err := h.Coupons.Update(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

// DeleteCoupon removes a coupon.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.Delete(r.Context(), mux.Vars(r)["code"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
