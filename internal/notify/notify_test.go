package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/angkor-mart/storefront/internal/domain/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:          "0b6f4a2e-7c1d-4c55-9d0a-3f1e2b3c4d5e",
		OrderNumber: "ORD-250309-0042",
		CouponCode:  "SAVE10",
		Discount:    decimal.RequireFromString("5"),
		Customer: order.Customer{
			Name:    "Sok Dara",
			Phone:   "012345678",
			Address: "Street 271, Phnom Penh",
			Email:   "dara@example.com",
		},
		Items: []order.Item{
			{ProductID: "p1", NameEN: "Silk Scarf", NameKM: "ក្រមាសូត្រ", Price: decimal.RequireFromString("25"), Quantity: 2},
		},
		PaymentMethod: order.PaymentKHQR,
		Subtotal:      decimal.RequireFromString("50"),
		Total:         decimal.RequireFromString("45"),
		CreatedAt:     time.Date(2025, 3, 9, 10, 30, 0, 0, time.UTC),
	}
}

type funcNotifier struct {
	name string
	fn   func(ctx context.Context, o *order.Order) error
}

func (f *funcNotifier) Name() string                                     { return f.name }
func (f *funcNotifier) Notify(ctx context.Context, o *order.Order) error { return f.fn(ctx, o) }

func TestDispatcher_DeliversToAll(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(name string) Notifier {
		return &funcNotifier{name: name, fn: func(_ context.Context, o *order.Order) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+o.OrderNumber)
			return nil
		}}
	}
	failing := &funcNotifier{name: "broken", fn: func(context.Context, *order.Order) error {
		return errors.New("smtp down")
	}}
	panicking := &funcNotifier{name: "panicky", fn: func(context.Context, *order.Order) error {
		panic("boom")
	}}

	d, err := NewDispatcher(zap.New(core), nil, time.Second, record("a"), failing, record("b"), panicking)
	require.NoError(t, err)

	d.Dispatch(testOrder())
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{"a:ORD-250309-0042", "b:ORD-250309-0042"}, seen)
	assert.Equal(t, 1, logs.FilterMessage("Notification failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Notifier panicked").Len())
}

func TestDispatcher_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	slow := &funcNotifier{name: "slow", fn: func(ctx context.Context, _ *order.Order) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	d, err := NewDispatcher(zap.NewNop(), nil, time.Minute, slow)
	require.NoError(t, err)

	start := time.Now()
	d.Dispatch(testOrder())
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, d.Close(ctx))

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_TimeoutBoundsDelivery(t *testing.T) {
	var cancelled atomic.Bool
	hang := &funcNotifier{name: "hang", fn: func(ctx context.Context, _ *order.Order) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}}
	d, err := NewDispatcher(zap.NewNop(), nil, 10*time.Millisecond, hang)
	require.NoError(t, err)

	d.Dispatch(testOrder())
	require.NoError(t, d.Close(context.Background()))
	assert.True(t, cancelled.Load())
}

func TestDispatcher_SnapshotsOrder(t *testing.T) {
	got := make(chan string, 1)
	n := &funcNotifier{name: "n", fn: func(_ context.Context, o *order.Order) error {
		got <- o.Items[0].NameEN
		return nil
	}}
	d, err := NewDispatcher(zap.NewNop(), nil, time.Second, n)
	require.NoError(t, err)

	o := testOrder()
	d.Dispatch(o)
	o.Items[0].NameEN = "mutated"
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, "Silk Scarf", <-got)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	var calls atomic.Int32
	n := &funcNotifier{name: "n", fn: func(context.Context, *order.Order) error {
		calls.Add(1)
		return nil
	}}
	d, err := NewDispatcher(zap.NewNop(), nil, time.Second, n)
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	d.Dispatch(testOrder())
	require.NoError(t, d.Close(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestMailer(t *testing.T) {
	m, err := NewMailer(SMTPConfig{Host: "smtp.example.com", From: "Angkor Mart <shop@example.com>"})
	require.NoError(t, err)

	var (
		sentTo  []string
		sentMsg string
		addr    string
	)
	m.send = func(a string, _ smtp.Auth, from string, to []string, msg []byte) error {
		addr = a
		assert.Equal(t, "shop@example.com", from)
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), testOrder()))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"dara@example.com"}, sentTo)
	assert.Contains(t, sentMsg, "Subject: ")
	assert.Contains(t, sentMsg, "ORD-250309-0042")
	assert.Contains(t, sentMsg, "ក្រមាសូត្រ")
	assert.Contains(t, sentMsg, "$45.00")
	assert.Contains(t, sentMsg, "-$5.00")
}

func TestMailer_SkipsWithoutEmail(t *testing.T) {
	m, err := NewMailer(SMTPConfig{Host: "smtp.example.com", From: "shop@example.com"})
	require.NoError(t, err)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	o := testOrder()
	o.Customer.Email = ""
	require.NoError(t, m.Notify(context.Background(), o))
}

func TestMailer_SendError(t *testing.T) {
	m, err := NewMailer(SMTPConfig{Host: "smtp.example.com", From: "shop@example.com"})
	require.NoError(t, err)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("535 auth failed")
	}
	require.ErrorContains(t, m.Notify(context.Background(), testOrder()), "535")
}

func TestWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, ChatID: "-100123"})
	require.NoError(t, err)
	require.NoError(t, wh.Notify(context.Background(), testOrder()))

	assert.Equal(t, "-100123", body["chat_id"])
	text, _ := body["text"].(string)
	assert.Contains(t, text, "ORD-250309-0042")
	assert.Contains(t, text, "Silk Scarf × 2 = $50.00")
	assert.Contains(t, text, "Total: $45.00 (khqr)")
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	err = wh.Notify(context.Background(), testOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestEventPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &EventPublisher{w: w}

	require.NoError(t, p.Notify(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ORD-250309-0042", string(msg.Key))
	assert.Equal(t, EventOrderCreated, string(msg.Headers[0].Value))

	var ev struct {
		Type        string `json:"type"`
		OrderNumber string `json:"orderNumber"`
		Total       string `json:"total"`
		Items       []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		} `json:"items"`
		CreatedAt string `json:"createdAt"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventOrderCreated, ev.Type)
	assert.Equal(t, "45.00", ev.Total)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, 2, ev.Items[0].Quantity)
	assert.Equal(t, "2025-03-09T10:30:00Z", ev.CreatedAt)

	w.err = errors.New("leader not available")
	require.Error(t, p.Notify(context.Background(), testOrder()))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewEventPublisher_Validates(t *testing.T) {
	_, err := NewEventPublisher(nil, "orders")
	require.Error(t, err)

	p, err := NewEventPublisher([]string{"localhost:9092"}, "orders")
	require.NoError(t, err)
	assert.Equal(t, "kafka", p.Name())
	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "orders", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}
