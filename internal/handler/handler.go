// Package handler implements the storefront REST API on gorilla/mux.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/angkor-mart/storefront/internal/domain/auth"
	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/order"
	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/domain/review"
	"github.com/angkor-mart/storefront/internal/domain/user"
	"github.com/angkor-mart/storefront/internal/domain/wishlist"
	"github.com/angkor-mart/storefront/internal/identity"
)

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// PaymentSecret verifies the X-Signature header of payment callbacks.
	// When empty, callbacks are refused.
	PaymentSecret []byte
}

// Services bundles the domain services the API delegates to.
type Services struct {
	Products   *product.Service
	Categories *category.Service
	Coupons    *coupon.Service
	Validator  coupon.Validator
	Orders     *order.Service
	Users      *user.Service
	Reviews    *review.Service
	Wishlist   *wishlist.Service
	Admins     *auth.Service
	Identity   identity.Verifier
	// Uploader may be nil, in which case uploads answer 503.
	Uploader Uploader
}

// Handler serves the storefront API.
type Handler struct {
	Services
	paymentSecret []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, s Services) *Handler {
	return &Handler{Services: s, paymentSecret: cfg.PaymentSecret}
}

// Register mounts every API route on r under /api.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	admin := h.requireAdmin
	customer := h.requireUser

	api.HandleFunc("/auth/setup", h.Setup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.Handle("/auth/me", admin(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{slug}", h.GetProduct).Methods(http.MethodGet)
	api.Handle("/products", admin(http.HandlerFunc(h.CreateProduct))).Methods(http.MethodPost)
	api.Handle("/products/{id}", admin(http.HandlerFunc(h.UpdateProduct))).Methods(http.MethodPut)
	api.Handle("/products/{id}", admin(http.HandlerFunc(h.DeleteProduct))).Methods(http.MethodDelete)

	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{slug}", h.GetCategory).Methods(http.MethodGet)
	api.Handle("/categories", admin(http.HandlerFunc(h.CreateCategory))).Methods(http.MethodPost)
	api.Handle("/categories/{id}", admin(http.HandlerFunc(h.UpdateCategory))).Methods(http.MethodPut)
	api.Handle("/categories/{id}", admin(http.HandlerFunc(h.DeleteCategory))).Methods(http.MethodDelete)

	api.Handle("/upload", admin(http.HandlerFunc(h.Upload))).Methods(http.MethodPost)

	api.HandleFunc("/coupons/validate", h.ValidateCoupon).Methods(http.MethodPost)
	api.Handle("/coupons", admin(http.HandlerFunc(h.ListCoupons))).Methods(http.MethodGet)
	api.Handle("/coupons", admin(http.HandlerFunc(h.CreateCoupon))).Methods(http.MethodPost)
	api.Handle("/coupons/{code}", admin(http.HandlerFunc(h.GetCoupon))).Methods(http.MethodGet)
	api.Handle("/coupons/{code}", admin(http.HandlerFunc(h.UpdateCoupon))).Methods(http.MethodPut)
	api.Handle("/coupons/{code}", admin(http.HandlerFunc(h.DeleteCoupon))).Methods(http.MethodDelete)

	api.Handle("/orders", h.optionalUser(http.HandlerFunc(h.PlaceOrder))).Methods(http.MethodPost)
	api.Handle("/orders", admin(http.HandlerFunc(h.ListOrders))).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.Handle("/orders/{id}", admin(http.HandlerFunc(h.UpdateOrderStatus))).Methods(http.MethodPut)
	api.HandleFunc("/payments/callback", h.PaymentCallback).Methods(http.MethodPost)

	api.Handle("/users/google-auth", customer(http.HandlerFunc(h.GoogleAuth))).Methods(http.MethodPost)
	api.Handle("/users/profile", customer(http.HandlerFunc(h.GetProfile))).Methods(http.MethodGet)
	api.Handle("/users/profile", customer(http.HandlerFunc(h.UpdateProfile))).Methods(http.MethodPut)
	api.Handle("/users/orders", customer(http.HandlerFunc(h.MyOrders))).Methods(http.MethodGet)

	api.HandleFunc("/reviews/product/{productId}", h.ListReviews).Methods(http.MethodGet)
	api.Handle("/reviews", customer(http.HandlerFunc(h.SubmitReview))).Methods(http.MethodPost)
	api.Handle("/reviews/{id}", customer(http.HandlerFunc(h.DeleteReview))).Methods(http.MethodDelete)

	api.Handle("/wishlist", customer(http.HandlerFunc(h.ListWishlist))).Methods(http.MethodGet)
	api.Handle("/wishlist/{productId}", customer(http.HandlerFunc(h.AddToWishlist))).Methods(http.MethodPost)
	api.Handle("/wishlist/{productId}", customer(http.HandlerFunc(h.RemoveFromWishlist))).Methods(http.MethodDelete)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
