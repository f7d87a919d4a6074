package order

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentLinks_URL(t *testing.T) {
	links := PaymentLinks{
		ABAPayWayURL: "https://checkout.example.com/aba?merchant=angkor",
		KHQRURL:      "https://checkout.example.com/khqr",
	}

	o := &Order{OrderNumber: "ORD-250309-0042", Total: d("45"), PaymentMethod: PaymentABAPayWay}
	u, err := url.Parse(links.URL(o))
	require.NoError(t, err)
	assert.Equal(t, "/aba", u.Path)
	assert.Equal(t, "angkor", u.Query().Get("merchant"))
	assert.Equal(t, "ORD-250309-0042", u.Query().Get("orderId"))
	assert.Equal(t, "45.00", u.Query().Get("amount"))

	o.PaymentMethod = PaymentCOD
	assert.Empty(t, links.URL(o))

	o.PaymentMethod = PaymentKHQR
	assert.Empty(t, PaymentLinks{}.URL(o))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"orderId":"ORD-250309-0042","status":"paid","amount":"45.00"}`)
	sig := Sign(secret, body)

	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, "sha256="+sig))
	assert.False(t, VerifySignature(secret, append(body, ' '), sig))
	assert.False(t, VerifySignature([]byte("other"), body, sig))
	assert.False(t, VerifySignature(secret, body, "zz"))
	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(nil, body, Sign(nil, body)))
}

func TestNewNumber(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	n := NewNumber(ts)
	assert.Regexp(t, `^ORD-251231-\d{4}$`, n)
}
