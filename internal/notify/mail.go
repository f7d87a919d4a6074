package notify

import (
	"bytes"
	"context"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/angkor-mart/storefront/internal/domain/order"
)

// SMTPConfig configures the receipt mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StoreName appears in the subject and greeting.
	StoreName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer emails a bilingual receipt to the customer. Orders without a
// customer email are skipped.
type Mailer struct {
	cfg  SMTPConfig
	from mail.Address
	send sendFunc
}

var _ Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer.
func NewMailer(cfg SMTPConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, errors.Wrap(err, "parse from address")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "Angkor Mart"
	}
	return &Mailer{cfg: cfg, from: *from, send: smtp.SendMail}, nil
}

func (m *Mailer) Name() string { return "mail" }

// Notify sends the receipt. net/smtp has no context support, so a send that
// outlives ctx is abandoned rather than interrupted.
func (m *Mailer) Notify(ctx context.Context, o *order.Order) error {
	if o.Customer.Email == "" {
		return nil
	}
	to, err := mail.ParseAddress(o.Customer.Email)
	if err != nil {
		return errors.Wrap(err, "parse customer email")
	}

	msg, err := m.message(o, to)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.from.Address, []string{to.Address}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "send mail")
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "send mail")
	}
}

func (m *Mailer) message(o *order.Order, to *mail.Address) ([]byte, error) {
	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, receiptData{Store: m.cfg.StoreName, Order: o}); err != nil {
		return nil, errors.Wrap(err, "render receipt")
	}

	subject := m.cfg.StoreName + " order " + o.OrderNumber

	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", m.from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("UTF-8", subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.Write(body.Bytes())
	return b.Bytes(), nil
}

type receiptData struct {
	Store string
	Order *order.Order
}

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": func(v interface{ StringFixed(int32) string }) string { return "$" + v.StringFixed(2) },
	"line":  func(i order.Item) string { return "$" + i.LineTotal().StringFixed(2) },
}).Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>{{.Store}}</h2>
<p>Thank you for your order, {{.Order.Customer.Name}}!<br>សូមអរគុណសម្រាប់ការបញ្ជាទិញរបស់អ្នក!</p>
<p><strong>Order / លេខបញ្ជាទិញ:</strong> {{.Order.OrderNumber}}</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
{{range .Order.Items}}<tr><td>{{.NameEN}}{{if .NameKM}}<br><small>{{.NameKM}}</small>{{end}}</td><td align="center">{{.Quantity}}</td><td align="right">{{money .Price}}</td><td align="right">{{line .}}</td></tr>
{{end}}</table>
<p>Subtotal / សរុបរង: {{money .Order.Subtotal}}<br>
{{if .Order.CouponCode}}Discount ({{.Order.CouponCode}}) / បញ្ចុះតម្លៃ: -{{money .Order.Discount}}<br>{{end}}
<strong>Total / សរុប: {{money .Order.Total}}</strong></p>
<p>Payment: {{.Order.PaymentMethod}}{{if .Order.PaymentURL}} · <a href="{{.Order.PaymentURL}}">Pay now</a>{{end}}</p>
<p>Delivery to: {{.Order.Customer.Address}} ({{.Order.Customer.Phone}})</p>
</body></html>
`))
