package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateNumber is returned by Repository.Create when the order
	// number is already taken.
	ErrDuplicateNumber = errors.New("order number already exists")
	// ErrConflict is returned when the order changed concurrently.
	ErrConflict = errors.New("order was modified concurrently")
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the payment state of an order, tracked independently of
// OrderStatus.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD       PaymentMethod = "cod"
	PaymentABAPayWay PaymentMethod = "aba_payway"
	PaymentKHQR      PaymentMethod = "khqr"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentABAPayWay, PaymentKHQR:
		return true
	default:
		return false
	}
}

// Customer is the contact block captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Item is an immutable snapshot of a product line at the time of purchase.
// It is intentionally decoupled from the live product record.
type Item struct {
	ProductID string          `json:"productId"`
	NameEN    string          `json:"nameEn"`
	NameKM    string          `json:"nameKm"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// LineTotal returns price multiplied by quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a persisted checkout.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	CouponCode    string
	Discount      decimal.Decimal
	Customer      Customer
	Items         []Item
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentURL    string
	OrderStatus   OrderStatus
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o. When o.CouponCode is set, one coupon use is consumed
	// in the same transaction; if none is left nothing is written and
	// coupon.ErrUsageLimitReached is returned.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus writes next only if the stored statuses still equal prev.
	UpdateStatus(ctx context.Context, id string, prev, next State) error
}

// Notifier receives newly created orders. Implementations must not block.
type Notifier interface {
	Dispatch(o *Order)
}
