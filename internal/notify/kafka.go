package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/angkor-mart/storefront/internal/domain/order"
)

// EventOrderCreated is the type of the event published for new orders.
const EventOrderCreated = "order.created"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher publishes order events to a Kafka topic, keyed by order
// number so events of one order stay ordered.
type EventPublisher struct {
	w messageWriter
}

var _ Notifier = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher writing to topic on brokers.
func NewEventPublisher(brokers []string, topic string) (*EventPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic required")
	}
	return &EventPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *EventPublisher) Name() string { return "kafka" }

// Notify publishes an order.created event.
func (p *EventPublisher) Notify(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.OrderNumber),
		Value: orderCreatedEvent(o),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventOrderCreated)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.w.Close()
}

func orderCreatedEvent(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(EventOrderCreated) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.OrderNumber) })
		if o.UserID != "" {
			e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		}
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { e.Str(it.Price.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
