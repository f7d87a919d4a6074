package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestTransition_OrderStatus(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusShipped, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusCancelled, true},
		{StatusProcessing, StatusPending, false},
		{StatusShipped, StatusProcessing, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusPending, OrderStatus("lost"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			cur := State{Order: tt.from, Payment: PaymentPaid}
			next, err := Transition(cur, StatusUpdate{OrderStatus: &tt.to}, PaymentKHQR, ActorAdmin, false)
			if !tt.ok {
				var te *InvalidTransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "orderStatus", te.Field)
				assert.Equal(t, cur, next)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, next.Order)
		})
	}
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	for _, s := range []OrderStatus{StatusPending, StatusDelivered, StatusCancelled} {
		cur := State{Order: s, Payment: PaymentPending}
		next, err := Transition(cur, StatusUpdate{OrderStatus: ptr(s), PaymentStatus: ptr(PaymentPending)}, PaymentCOD, ActorAdmin, false)
		require.NoError(t, err)
		assert.Equal(t, cur, next)
	}
}

func TestTransition_Payment(t *testing.T) {
	tests := []struct {
		name   string
		from   PaymentStatus
		to     PaymentStatus
		actor  Actor
		manual bool
		want   PaymentStatus
		err    bool
	}{
		{name: "provider confirms", from: PaymentPending, to: PaymentPaid, actor: ActorPaymentProvider, want: PaymentPaid},
		{name: "provider fails", from: PaymentPending, to: PaymentFailed, actor: ActorPaymentProvider, want: PaymentFailed},
		{name: "admin resets failed", from: PaymentFailed, to: PaymentPending, actor: ActorAdmin, want: PaymentPending},
		{name: "admin marks failed", from: PaymentPending, to: PaymentFailed, actor: ActorAdmin, want: PaymentFailed},
		{name: "admin cannot mark paid", from: PaymentPending, to: PaymentPaid, actor: ActorAdmin, err: true},
		{name: "admin marks paid when manual", from: PaymentPending, to: PaymentPaid, actor: ActorAdmin, manual: true, want: PaymentPaid},
		{name: "paid is final", from: PaymentPaid, to: PaymentPending, actor: ActorPaymentProvider, err: true},
		{name: "unknown status", from: PaymentPending, to: PaymentStatus("refunded"), actor: ActorAdmin, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := State{Order: StatusPending, Payment: tt.from}
			next, err := Transition(cur, StatusUpdate{PaymentStatus: &tt.to}, PaymentABAPayWay, tt.actor, tt.manual)
			if tt.err {
				require.Error(t, err)
				assert.Equal(t, cur, next)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Payment)
		})
	}
}

func TestTransition_DeliveryRequiresPayment(t *testing.T) {
	cur := State{Order: StatusShipped, Payment: PaymentPending}

	_, err := Transition(cur, StatusUpdate{OrderStatus: ptr(StatusDelivered)}, PaymentABAPayWay, ActorAdmin, false)
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)

	next, err := Transition(cur, StatusUpdate{OrderStatus: ptr(StatusDelivered)}, PaymentCOD, ActorAdmin, false)
	require.NoError(t, err)
	assert.Equal(t, State{Order: StatusDelivered, Payment: PaymentPaid}, next)

	// Payment and delivery in one update are checked together.
	next, err = Transition(cur, StatusUpdate{
		OrderStatus:   ptr(StatusDelivered),
		PaymentStatus: ptr(PaymentPaid),
	}, PaymentKHQR, ActorAdmin, true)
	require.NoError(t, err)
	assert.Equal(t, State{Order: StatusDelivered, Payment: PaymentPaid}, next)
}

func TestTrackingStep(t *testing.T) {
	tests := []struct {
		state State
		want  int
	}{
		{State{StatusPending, PaymentPending}, StepPlaced},
		{State{StatusPending, PaymentFailed}, StepPlaced},
		{State{StatusPending, PaymentPaid}, StepPaid},
		{State{StatusProcessing, PaymentPending}, StepProcessing},
		{State{StatusProcessing, PaymentPaid}, StepProcessing},
		{State{StatusShipped, PaymentPaid}, StepShipped},
		{State{StatusDelivered, PaymentPaid}, StepDelivered},
		{State{StatusCancelled, PaymentPaid}, StepCancelled},
		{State{StatusCancelled, PaymentPending}, StepCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.state.Order)+"/"+string(tt.state.Payment), func(t *testing.T) {
			assert.Equal(t, tt.want, TrackingStep(tt.state))
		})
	}
}
