// Package event carries the domain events that couple the order lifecycle to
// its dependent aggregates. The dispatcher is synchronous: handlers run in
// the caller's goroutine and, when the caller opened a transaction, inside
// the same transaction boundary. This replaces the "caller must remember to
// also update settlements" convention with a single wiring point.
package event

import (
	"context"

	"github.com/go-faster/errors"
)

// Event is a business fact that already happened on one aggregate and that
// other aggregates react to.
type Event interface {
	Name() string
}

// OrderPaid fires after a payment confirmation transitioned an order to PAID.
type OrderPaid struct {
	OrderCode string
}

func (OrderPaid) Name() string { return "order.paid" }

// OrderCancelled fires after an order reached CANCELLED, either by a buyer
// action or by the reconciliation job.
type OrderCancelled struct {
	OrderCode string
}

func (OrderCancelled) Name() string { return "order.cancelled" }

// DeliveryCompleted fires when one line item reaches DELIVERY_COMPLETED,
// which makes the matching settlement confirmable.
type DeliveryCompleted struct {
	OrderCode string
	SellerID  int64
	ProductID int64
}

func (DeliveryCompleted) Name() string { return "order.delivery_completed" }

// PurchaseConfirmed fires when a buyer confirms receipt. A zero SellerID and
// ProductID means the confirmation covers the whole order; otherwise it is
// scoped to one line item.
type PurchaseConfirmed struct {
	OrderCode string
	SellerID  int64
	ProductID int64
}

func (PurchaseConfirmed) Name() string { return "order.purchase_confirmed" }

// Handler reacts to a single event. A non-nil error aborts the dispatch and
// propagates to the publisher, rolling back its transaction.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes events to their registered handlers in registration
// order. It is configured once at wiring time and read-only afterwards, so it
// needs no locking.
type Dispatcher struct {
	handlers map[string][]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.handlers[name] = append(d.handlers[name], h)
}

// Dispatch invokes every handler registered for the event, stopping at the
// first failure.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	for _, h := range d.handlers[ev.Name()] {
		if err := h(ctx, ev); err != nil {
			return errors.Wrapf(err, "dispatch %s", ev.Name())
		}
	}
	return nil
}
