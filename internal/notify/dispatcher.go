// Package notify delivers best-effort notifications about new orders.
package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/order"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 15 * time.Second

// Notifier delivers one kind of notification.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, o *order.Order) error
}

var _ order.Notifier = (*Dispatcher)(nil)

// Dispatcher fans an order out to every notifier in the background.
// Failures are logged and counted, never retried.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	lg        *zap.Logger

	delivered metric.Int64Counter
	failed    metric.Int64Counter

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A zero timeout selects DefaultTimeout.
func NewDispatcher(lg *zap.Logger, mp metric.MeterProvider, timeout time.Duration, notifiers ...Notifier) (*Dispatcher, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	meter := mp.Meter("storefront/notify")

	delivered, err := meter.Int64Counter("store.notifications.delivered",
		metric.WithDescription("Order notifications delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "delivered counter")
	}
	failed, err := meter.Int64Counter("store.notifications.failed",
		metric.WithDescription("Order notifications that failed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}

	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		lg:        lg,
		delivered: delivered,
		failed:    failed,
	}, nil
}

// Dispatch starts delivery of o to every notifier and returns immediately.
func (d *Dispatcher) Dispatch(o *order.Order) {
	snapshot := *o
	snapshot.Items = slices.Clone(o.Items)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.lg.Warn("Dispatcher closed, dropping notifications",
			zap.String("order_number", o.OrderNumber))
		return
	}

	for _, n := range d.notifiers {
		d.wg.Add(1)
		go d.deliver(n, &snapshot)
	}
}

func (d *Dispatcher) deliver(n Notifier, o *order.Order) {
	defer d.wg.Done()

	// Detached from the request: the HTTP response is usually sent already.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	lg := d.lg.With(
		zap.String("notifier", n.Name()),
		zap.String("order_number", o.OrderNumber),
	)
	attrs := metric.WithAttributes(attribute.String("notifier", n.Name()))

	defer func() {
		if r := recover(); r != nil {
			lg.Error("Notifier panicked", zap.Any("panic", r))
			d.failed.Add(ctx, 1, attrs)
		}
	}()

	start := time.Now()
	if err := n.Notify(ctx, o); err != nil {
		lg.Error("Notification failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		d.failed.Add(ctx, 1, attrs)
		return
	}
	lg.Debug("Notification delivered", zap.Duration("took", time.Since(start)))
	d.delivered.Add(ctx, 1, attrs)
}

// Close stops accepting orders and waits for in-flight deliveries or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for notifications")
	}
}
