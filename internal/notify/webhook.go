package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angkor-mart/storefront/internal/domain/order"
)

// WebhookConfig configures the operations chat notification.
type WebhookConfig struct {
	// URL receives a POST, e.g. https://api.telegram.org/bot<token>/sendMessage.
	URL    string
	ChatID string
	// Transport is wrapped with OpenTelemetry instrumentation.
	Transport http.RoundTripper
}

// Webhook posts a Telegram-style message about each new order to an
// operations chat.
type Webhook struct {
	url    string
	chatID string
	client *http.Client
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a Webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &Webhook{
		url:    cfg.URL,
		chatID: cfg.ChatID,
		client: &http.Client{
			Transport: otelhttp.NewTransport(cfg.Transport),
			Timeout:   10 * time.Second,
		},
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

// Notify posts the message.
func (w *Webhook) Notify(ctx context.Context, o *order.Order) error {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if w.chatID != "" {
			e.Field("chat_id", func(e *jx.Encoder) { e.Str(w.chatID) })
		}
		e.Field("text", func(e *jx.Encoder) { e.Str(orderSummary(o)) })
		e.Field("disable_web_page_preview", func(e *jx.Encoder) { e.Bool(true) })
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// orderSummary renders the plain-text chat message for o.
func orderSummary(o *order.Order) string {
	var b strings.Builder
	b.WriteString("🛒 New order " + o.OrderNumber + "\n")
	b.WriteString("Customer: " + o.Customer.Name + " · " + o.Customer.Phone + "\n")
	b.WriteString("Address: " + o.Customer.Address + "\n")
	if o.Customer.Note != "" {
		b.WriteString("Note: " + o.Customer.Note + "\n")
	}
	b.WriteString("\n")
	for _, it := range o.Items {
		b.WriteString("• " + it.NameEN + " × " + strconv.Itoa(it.Quantity) + " = $" + it.LineTotal().StringFixed(2) + "\n")
	}
	b.WriteString("\n")
	if o.CouponCode != "" {
		b.WriteString("Coupon " + o.CouponCode + ": -$" + o.Discount.StringFixed(2) + "\n")
	}
	b.WriteString("Total: $" + o.Total.StringFixed(2) + " (" + string(o.PaymentMethod) + ")")
	return b.String()
}
