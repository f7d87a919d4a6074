package order

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrAmountMismatch is returned when a payment callback reports an amount
// different from the order total.
var ErrAmountMismatch = errors.New("paid amount does not match order total")

// PaymentLinks builds hosted checkout URLs for online payment methods.
type PaymentLinks struct {
	ABAPayWayURL string
	KHQRURL      string
}

// URL returns the payment URL for o, or "" for cash on delivery and
// unconfigured methods.
func (l PaymentLinks) URL(o *Order) string {
	var base string
	switch o.PaymentMethod {
	case PaymentABAPayWay:
		base = l.ABAPayWayURL
	case PaymentKHQR:
		base = l.KHQRURL
	}
	if base == "" {
		return ""
	}

	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("orderId", o.OrderNumber)
	q.Set("amount", o.Total.StringFixed(2))
	q.Set("currency", "USD")
	u.RawQuery = q.Encode()
	return u.String()
}

// PaymentCallback is the provider notification for an order payment.
type PaymentCallback struct {
	OrderNumber string
	Status      PaymentStatus
	Amount      decimal.Decimal
	Reference   string
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the HMAC-SHA256 of body. An empty
// secret never verifies.
func VerifySignature(secret, body []byte, sig string) bool {
	if len(secret) == 0 || sig == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sig), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
