package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// ErrPaymentConfirmationRequired is returned when an admin tries to mark an
// order paid without provider confirmation.
var ErrPaymentConfirmationRequired = errors.New("payment can only be confirmed by the payment provider")

// State is the pair of independent statuses an order carries.
type State struct {
	Order   OrderStatus
	Payment PaymentStatus
}

// Actor identifies who requests a status change.
type Actor int

const (
	ActorAdmin Actor = iota
	ActorPaymentProvider
)

// StatusUpdate is a partial status change; nil fields are left untouched.
type StatusUpdate struct {
	OrderStatus   *OrderStatus
	PaymentStatus *PaymentStatus
}

// InvalidTransitionError reports a status change the state machine rejects.
type InvalidTransitionError struct {
	Field string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot change from %q to %q", e.Field, e.From, e.To)
}

// fulfilmentRank orders the forward path. Cancelled is outside it.
var fulfilmentRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending, PaymentPaid},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := fulfilmentRank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no further fulfilment change is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	default:
		return false
	}
}

func canAdvance(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fr, ok := fulfilmentRank[from]
	if !ok {
		return false
	}
	tr, ok := fulfilmentRank[to]
	return ok && tr > fr
}

// Transition applies upd to cur and returns the resulting state.
//
// Fulfilment only moves forward along pending, processing, shipped,
// delivered; cancelled is reachable from any non-terminal status. Writing
// the current value is a no-op. Only the payment provider may set paid
// unless manualPaid is true. Delivery requires a paid order, except cash on
// delivery where delivering implies payment was collected.
func Transition(cur State, upd StatusUpdate, method PaymentMethod, actor Actor, manualPaid bool) (State, error) {
	next := cur

	if upd.PaymentStatus != nil && *upd.PaymentStatus != cur.Payment {
		to := *upd.PaymentStatus
		if !to.Valid() || !slices.Contains(paymentTransitions[cur.Payment], to) {
			return cur, &InvalidTransitionError{Field: "paymentStatus", From: string(cur.Payment), To: string(to)}
		}
		if to == PaymentPaid && actor != ActorPaymentProvider && !manualPaid {
			return cur, ErrPaymentConfirmationRequired
		}
		next.Payment = to
	}

	if upd.OrderStatus != nil && *upd.OrderStatus != cur.Order {
		to := *upd.OrderStatus
		if !to.Valid() || !canAdvance(cur.Order, to) {
			return cur, &InvalidTransitionError{Field: "orderStatus", From: string(cur.Order), To: string(to)}
		}
		if to == StatusDelivered && next.Payment != PaymentPaid {
			if method != PaymentCOD {
				return cur, &InvalidTransitionError{Field: "orderStatus", From: string(cur.Order), To: string(to)}
			}
			next.Payment = PaymentPaid
		}
		next.Order = to
	}

	return next, nil
}

// Tracking steps shown to customers. Cancelled orders report StepCancelled.
const (
	StepCancelled  = -1
	StepPlaced     = 0
	StepPaid       = 1
	StepProcessing = 2
	StepShipped    = 3
	StepDelivered  = 4
)

// TrackingStep collapses the two statuses into a single progress index.
// Later fulfilment states take precedence over payment.
func TrackingStep(s State) int {
	switch {
	case s.Order == StatusCancelled:
		return StepCancelled
	case s.Order == StatusDelivered:
		return StepDelivered
	case s.Order == StatusShipped:
		return StepShipped
	case s.Order == StatusProcessing:
		return StepProcessing
	case s.Payment == PaymentPaid:
		return StepPaid
	default:
		return StepPlaced
	}
}

// State returns the current statuses of o.
func (o *Order) State() State {
	return State{Order: o.OrderStatus, Payment: o.PaymentStatus}
}
