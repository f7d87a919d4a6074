package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/order"
)

// orderItemRequest is a cart line. Carts send the whole product snapshot;
// only ProductID and Quantity are read, prices come from the catalog.
type orderItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name"`
	NameEN    string           `json:"nameEn"`
	NameKM    string           `json:"nameKm"`
	Price     *decimal.Decimal `json:"price"`
	Image     string           `json:"image"`
}

// placeOrderRequest is decoded leniently: Subtotal and Total are the
// client's own figures and only compared against server pricing.
type placeOrderRequest struct {
	Customer      order.Customer     `json:"customer"`
	Items         []orderItemRequest `json:"items"`
	CouponCode    string             `json:"couponCode"`
	PaymentMethod string             `json:"paymentMethod"`
	Subtotal      *decimal.Decimal   `json:"subtotal"`
	Total         *decimal.Decimal   `json:"total"`
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	NameEN    string `json:"nameEn"`
	NameKM    string `json:"nameKm"`
	Price     Money  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image"`
	LineTotal Money  `json:"lineTotal"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	Customer      order.Customer      `json:"customer"`
	Items         []orderItemResponse `json:"items"`
	CouponCode    string              `json:"couponCode,omitempty"`
	Subtotal      Money               `json:"subtotal"`
	Discount      Money               `json:"discount"`
	Total         Money               `json:"total"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
	PaymentURL    string              `json:"paymentUrl,omitempty"`
	OrderStatus   order.OrderStatus   `json:"orderStatus"`
	TrackingStep  int                 `json:"trackingStep"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			NameEN:    it.NameEN,
			NameKM:    it.NameKM,
			Price:     money(it.Price),
			Quantity:  it.Quantity,
			Image:     it.Image,
			LineTotal: money(it.LineTotal()),
		}
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Customer:      o.Customer,
		Items:         items,
		CouponCode:    o.CouponCode,
		Subtotal:      money(o.Subtotal),
		Discount:      money(o.Discount),
		Total:         money(o.Total),
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		PaymentURL:    o.PaymentURL,
		OrderStatus:   o.OrderStatus,
		TrackingStep:  order.TrackingStep(o.State()),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// trackingResponse is the public view of an order. It leaves out the
// customer's contact details.
type trackingResponse struct {
	OrderNumber   string              `json:"orderNumber"`
	Items         []orderItemResponse `json:"items"`
	Subtotal      Money               `json:"subtotal"`
	Discount      Money               `json:"discount"`
	Total         Money               `json:"total"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
	PaymentURL    string              `json:"paymentUrl,omitempty"`
	OrderStatus   order.OrderStatus   `json:"orderStatus"`
	TrackingStep  int                 `json:"trackingStep"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func toTrackingResponse(o *order.Order) trackingResponse {
	full := toOrderResponse(o)
	return trackingResponse{
		OrderNumber:   full.OrderNumber,
		Items:         full.Items,
		Subtotal:      full.Subtotal,
		Discount:      full.Discount,
		Total:         full.Total,
		PaymentMethod: full.PaymentMethod,
		PaymentStatus: full.PaymentStatus,
		PaymentURL:    full.PaymentURL,
		OrderStatus:   full.OrderStatus,
		TrackingStep:  full.TrackingStep,
		CreatedAt:     full.CreatedAt,
		UpdatedAt:     full.UpdatedAt,
	}
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

// PlaceOrder reprices the cart on the server and creates the order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeLenient(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	in := order.PlaceOrderRequest{
		Customer:      req.Customer,
		Items:         lines,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
		Subtotal:      req.Subtotal,
		Total:         req.Total,
	}
	if id, ok := identityFrom(r.Context()); ok {
		in.UserID = id.UID
		if in.Customer.Email == "" {
			in.Customer.Email = id.Email
		}
	}

	o, err := h.Orders.PlaceOrder(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns the tracking view of an order by ID or order number.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackingResponse(o))
}

// ListOrders returns orders for the admin dashboard.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := order.ListFilter{
		OrderStatus:   order.OrderStatus(q.Get("orderStatus")),
		PaymentStatus: order.PaymentStatus(q.Get("paymentStatus")),
		Limit:         limit,
		Offset:        offset,
	}
	if f.OrderStatus != "" && !f.OrderStatus.Valid() {
		fail(w, r, badRequest("unknown orderStatus"))
		return
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		fail(w, r, badRequest("unknown paymentStatus"))
		return
	}

	orders, err := h.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

type statusRequest struct {
	OrderStatus   *order.OrderStatus   `json:"orderStatus"`
	PaymentStatus *order.PaymentStatus `json:"paymentStatus"`
}

// UpdateOrderStatus applies an admin status change.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderStatus == nil && req.PaymentStatus == nil {
		fail(w, r, badRequest("orderStatus or paymentStatus required"))
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], order.StatusUpdate{
		OrderStatus:   req.OrderStatus,
		PaymentStatus: req.PaymentStatus,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type paymentCallbackRequest struct {
	OrderID   string          `json:"orderId"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// PaymentCallback applies a signed payment provider notification. It is the
// only way an order becomes paid unless manual confirmation is enabled.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		fail(w, r, badRequest("read body"))
		return
	}
	if !order.VerifySignature(h.paymentSecret, body, r.Header.Get("X-Signature")) {
		zctx.From(r.Context()).Warn("Payment callback signature mismatch")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req paymentCallbackRequest
	if err := decodeBytes(body, &req); err != nil {
		fail(w, r, err)
		return
	}
	status := order.PaymentStatus(req.Status)
	if status != order.PaymentPaid && status != order.PaymentFailed {
		fail(w, r, badRequest("status must be paid or failed"))
		return
	}

	o, err := h.Orders.ConfirmPayment(r.Context(), order.PaymentCallback{
		OrderNumber: req.OrderID,
		Status:      status,
		Amount:      req.Amount,
		Reference:   req.Reference,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment callback applied",
		zap.String("order_number", o.OrderNumber),
		zap.String("payment_status", string(o.PaymentStatus)),
		zap.String("reference", req.Reference),
	)
	writeJSON(w, http.StatusOK, toTrackingResponse(o))
}

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type validateCouponResponse struct {
	Applicable     bool                `json:"applicable"`
	Code           string              `json:"code"`
	Type           coupon.DiscountType `json:"type,omitempty"`
	DiscountAmount Money               `json:"discountAmount"`
	Reason         coupon.Reason       `json:"reason,omitempty"`
	Message        string              `json:"message,omitempty"`
}

// ValidateCoupon checks a coupon against a subtotal without consuming it.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Subtotal.IsNegative() {
		fail(w, r, badRequest("subtotal must not be negative"))
		return
	}
	res, err := h.Validator.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := validateCouponResponse{
		Applicable:     res.Applicable,
		Code:           res.Code,
		Type:           res.Type,
		DiscountAmount: money(res.DiscountAmount),
		Reason:         res.Reason,
	}
	if !res.Applicable {
		out.Message = res.Reason.Message()
	}
	writeJSON(w, http.StatusOK, out)
}
