package order

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/product"
)

// MaxQuantity is the largest quantity accepted for a single line.
const MaxQuantity = 1000

// maxOrderAmount is the largest amount the order money columns can hold.
var maxOrderAmount = decimal.RequireFromString("9999999999.99")

// Sentinel errors for order validation.
var (
	ErrEmptyItems           = errors.New("items required")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrOrderTooLarge        = errors.New("order amount exceeds the supported maximum")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// OutOfStockError indicates a requested product is not available.
type OutOfStockError struct {
	ProductID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock", e.ProductID)
}

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", MaxQuantity, e.ProductID)
}

// InvalidCustomerError reports a missing or malformed customer field.
type InvalidCustomerError struct {
	Field string
}

func (e *InvalidCustomerError) Error() string {
	return fmt.Sprintf("customer %s is invalid", e.Field)
}

// CouponNotApplicableError wraps a coupon rejection during checkout.
type CouponNotApplicableError struct {
	Code   string
	Reason coupon.Reason
}

func (e *CouponNotApplicableError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason.Message())
}

// LineRequest is a requested product line.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order. Subtotal and Total
// are what the client computed; they are compared against server pricing but
// never trusted.
type PlaceOrderRequest struct {
	UserID        string
	Customer      Customer
	Items         []LineRequest
	PaymentMethod PaymentMethod
	CouponCode    string
	Subtotal      *decimal.Decimal
	Total         *decimal.Decimal
}

// ServiceConfig tunes the order Service.
type ServiceConfig struct {
	PaymentLinks PaymentLinks
	// ManualPaymentConfirm allows admins to mark orders paid directly.
	ManualPaymentConfirm bool
	MeterProvider        metric.MeterProvider
}

type serviceMetrics struct {
	placed    metric.Int64Counter
	revenue   metric.Float64Counter
	redeemed  metric.Int64Counter
	rejected  metric.Int64Counter
	statusSet metric.Int64Counter
}

// Service encapsulates checkout and order lifecycle logic.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	orders   Repository
	notifier Notifier
	links    PaymentLinks
	manual   bool
	metrics  serviceMetrics
	now      func() time.Time
	number   NumberFunc
}

// NewService creates an order Service with the required domain dependencies.
// notifier may be nil.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
	notifier Notifier,
	cfg ServiceConfig,
) (*Service, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("storefront/order")

	var (
		m   serviceMetrics
		err error
	)
	if m.placed, err = meter.Int64Counter("store.orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if m.revenue, err = meter.Float64Counter("store.orders.revenue",
		metric.WithDescription("Order totals in USD"),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}
	if m.redeemed, err = meter.Int64Counter("store.coupons.redeemed",
		metric.WithDescription("Coupon uses consumed by orders"),
	); err != nil {
		return nil, errors.Wrap(err, "coupon redeemed counter")
	}
	if m.rejected, err = meter.Int64Counter("store.coupons.rejected",
		metric.WithDescription("Checkouts rejected because of a coupon"),
	); err != nil {
		return nil, errors.Wrap(err, "coupon rejected counter")
	}
	if m.statusSet, err = meter.Int64Counter("store.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "status counter")
	}

	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		notifier: notifier,
		links:    cfg.PaymentLinks,
		manual:   cfg.ManualPaymentConfirm,
		metrics:  m,
		now:      time.Now,
		number:   NewNumber,
	}, nil
}

// PlaceOrder validates the request, prices every line from the catalog,
// applies the coupon, persists the order and hands it to the notifier.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if err := checkCustomer(&req.Customer); err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentCOD
	}
	if !req.PaymentMethod.Valid() {
		return nil, errors.Wrapf(ErrInvalidPaymentMethod, "%q", req.PaymentMethod)
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids = append(ids, item.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, line := range req.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !p.InStock {
			return nil, &OutOfStockError{ProductID: line.ProductID}
		}
		item := Item{
			ProductID: p.ID,
			NameEN:    p.NameEN,
			NameKM:    p.NameKM,
			Price:     p.EffectivePrice(),
			Quantity:  line.Quantity,
			Image:     p.Image,
		}
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}
	subtotal = subtotal.Round(2)
	if subtotal.GreaterThan(maxOrderAmount) {
		return nil, errors.Wrapf(ErrOrderTooLarge, "subtotal %s", subtotal)
	}

	discount := decimal.Zero
	code := coupon.NormalizeCode(req.CouponCode)
	if code != "" {
		res, err := s.coupons.Validate(ctx, code, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if !res.Applicable {
			s.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(res.Reason))))
			return nil, &CouponNotApplicableError{Code: code, Reason: res.Reason}
		}
		discount = res.DiscountAmount
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	lg := zctx.From(ctx)
	if req.Subtotal != nil && !req.Subtotal.Round(2).Equal(subtotal) {
		lg.Warn("Client subtotal differs from server pricing",
			zap.String("client", req.Subtotal.String()),
			zap.String("server", subtotal.String()),
		)
	}
	if req.Total != nil && !req.Total.Round(2).Equal(total) {
		lg.Warn("Client total differs from server pricing",
			zap.String("client", req.Total.String()),
			zap.String("server", total.String()),
		)
	}

	now := s.now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		CouponCode:    code,
		Discount:      discount,
		Customer:      req.Customer,
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		OrderStatus:   StatusPending,
		Subtotal:      subtotal,
		Total:         total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.create(ctx, o); err != nil {
		if errors.Is(err, coupon.ErrUsageLimitReached) {
			s.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(coupon.ReasonExhausted))))
			return nil, &CouponNotApplicableError{Code: code, Reason: coupon.ReasonExhausted}
		}
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod)))
	s.metrics.placed.Add(ctx, 1, attrs)
	s.metrics.revenue.Add(ctx, o.Total.InexactFloat64(), attrs)
	if code != "" {
		s.metrics.redeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	}

	lg.Info("Order placed",
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("payment_method", string(o.PaymentMethod)),
	)

	if s.notifier != nil {
		s.notifier.Dispatch(o)
	}
	return o, nil
}

// create assigns an order number and payment URL and persists o, retrying
// with a fresh number on collision.
func (s *Service) create(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		o.OrderNumber = s.number(o.CreatedAt)
		o.PaymentURL = s.links.URL(o)

		err := s.orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateNumber) || attempt >= maxNumberAttempts {
			return errors.Wrap(err, "create order")
		}
		zctx.From(ctx).Debug("Order number collision, retrying",
			zap.String("order_number", o.OrderNumber), zap.Int("attempt", attempt))
	}
}

// Get returns an order by its ID or its order number.
func (s *Service) Get(ctx context.Context, ref string) (*Order, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToUpper(ref), "ORD-") {
		return s.orders.GetByNumber(ctx, strings.ToUpper(ref))
	}
	if _, err := uuid.Parse(ref); err != nil {
		return nil, ErrNotFound
	}
	return s.orders.GetByID(ctx, ref)
}

// List returns orders for the admin view.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	return s.orders.List(ctx, f)
}

// ListForUser returns the orders placed by a signed-in customer.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus applies an admin status change.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, o, upd, ActorAdmin)
}

// ConfirmPayment applies a verified payment provider callback.
func (s *Service) ConfirmPayment(ctx context.Context, cb PaymentCallback) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(cb.OrderNumber)))
	if err != nil {
		return nil, err
	}
	if cb.Status == PaymentPaid && !cb.Amount.Round(2).Equal(o.Total) {
		return nil, errors.Wrapf(ErrAmountMismatch, "order %s: got %s, want %s",
			o.OrderNumber, cb.Amount.StringFixed(2), o.Total.StringFixed(2))
	}
	status := cb.Status
	return s.apply(ctx, o, StatusUpdate{PaymentStatus: &status}, ActorPaymentProvider)
}

func (s *Service) apply(ctx context.Context, o *Order, upd StatusUpdate, actor Actor) (*Order, error) {
	prev := o.State()
	next, err := Transition(prev, upd, o.PaymentMethod, actor, s.manual)
	if err != nil {
		return nil, err
	}
	if next == prev {
		return o, nil
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, prev, next); err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	o.OrderStatus = next.Order
	o.PaymentStatus = next.Payment
	o.UpdatedAt = s.now().UTC()

	s.metrics.statusSet.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order_status", string(next.Order)),
		attribute.String("payment_status", string(next.Payment)),
	))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_number", o.OrderNumber),
		zap.String("order_status", string(next.Order)),
		zap.String("payment_status", string(next.Payment)),
	)
	return o, nil
}

func checkCustomer(c *Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Email = strings.TrimSpace(c.Email)
	c.Note = strings.TrimSpace(c.Note)

	switch {
	case c.Name == "":
		return &InvalidCustomerError{Field: "name"}
	case c.Phone == "":
		return &InvalidCustomerError{Field: "phone"}
	case c.Address == "":
		return &InvalidCustomerError{Field: "address"}
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return &InvalidCustomerError{Field: "email"}
		}
	}
	return nil
}
