package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/angkor-mart/storefront/internal/domain/review"
	"github.com/angkor-mart/storefront/internal/domain/user"
)

type userResponse struct {
	UID         string         `json:"uid"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	PhotoURL    string         `json:"photoUrl"`
	Phone       string         `json:"phone"`
	Addresses   []user.Address `json:"addresses"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func toUserResponse(u *user.User) userResponse {
	addrs := u.Addresses
	if addrs == nil {
		addrs = []user.Address{}
	}
	return userResponse{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Phone:       u.Phone,
		Addresses:   addrs,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// GoogleAuth records the verified identity and returns the account.
func (h *Handler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	u, err := h.Users.SignIn(r.Context(), &user.User{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.Name,
		PhotoURL:    id.Picture,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GetProfile returns the caller's account.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	u, err := h.Users.Profile(r.Context(), id.UID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type profileRequest struct {
	DisplayName *string         `json:"displayName"`
	Phone       *string         `json:"phone"`
	Addresses   *[]user.Address `json:"addresses"`
}

// UpdateProfile edits the caller's account.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id, _ := identityFrom(r.Context())
	u, err := h.Users.UpdateProfile(r.Context(), id.UID, user.ProfileUpdate{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Addresses:   req.Addresses,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// MyOrders returns the orders the caller placed while signed in.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	orders, err := h.Orders.ListForUser(r.Context(), id.UID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

type reviewResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toReviewResponse(rv *review.Review) reviewResponse {
	return reviewResponse{
		ID:          rv.ID,
		ProductID:   rv.ProductID,
		UserID:      rv.UserID,
		DisplayName: rv.DisplayName,
		PhotoURL:    rv.PhotoURL,
		Rating:      rv.Rating,
		Comment:     rv.Comment,
		CreatedAt:   rv.CreatedAt,
		UpdatedAt:   rv.UpdatedAt,
	}
}

type reviewListResponse struct {
	Reviews       []reviewResponse `json:"reviews"`
	AverageRating float64          `json:"averageRating"`
	Count         int              `json:"count"`
}

// ListReviews returns a product's reviews with the rating summary.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, sum, err := h.Reviews.List(r.Context(), mux.Vars(r)["productId"])
	if err != nil {
		fail(w, r, err)
		return
	}
	out := reviewListResponse{
		Reviews:       make([]reviewResponse, len(reviews)),
		AverageRating: sum.Average.InexactFloat64(),
		Count:         sum.Count,
	}
	for i := range reviews {
		out.Reviews[i] = toReviewResponse(&reviews[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type reviewRequest struct {
	ProductID string `json:"productId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// SubmitReview creates or replaces the caller's review of a product.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id, _ := identityFrom(r.Context())
	rv, err := h.Reviews.Submit(r.Context(), &review.Review{
		ProductID:   req.ProductID,
		UserID:      id.UID,
		DisplayName: id.Name,
		PhotoURL:    id.Picture,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// DeleteReview removes one of the caller's reviews.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := h.Reviews.Delete(r.Context(), mux.Vars(r)["id"], id.UID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWishlist returns the products on the caller's wishlist.
func (h *Handler) ListWishlist(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	products, err := h.Wishlist.List(r.Context(), id.UID)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// AddToWishlist adds a product. Adding it twice is not an error.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := h.Wishlist.Add(r.Context(), id.UID, mux.Vars(r)["productId"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromWishlist removes a product if present.
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := h.Wishlist.Remove(r.Context(), id.UID, mux.Vars(r)["productId"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
