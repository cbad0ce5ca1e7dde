package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Confirmation is the gateway's view of a payment.
type Confirmation struct {
	PaymentKey string
	OrderCode  string
	Status     Status
	Amount     decimal.Decimal
	Method     string
	ApprovedAt time.Time
}

// Gateway is the only boundary to the external payment provider. Every call
// is synchronous and must be bounded by a per-call timeout in the
// implementation; a failed call surfaces as *GatewayError.
type Gateway interface {
	// Confirm captures a payment the buyer approved in the gateway UI.
	Confirm(ctx context.Context, paymentKey, orderCode string, amount decimal.Decimal) (*Confirmation, error)
	// Cancel reverses a captured payment. Used for refunds and for
	// compensation after a local failure.
	Cancel(ctx context.Context, paymentKey, reason string) error
	// QueryByOrderCode fetches the payment state for an order code, or
	// ErrPaymentNotFound when the gateway never saw the code.
	QueryByOrderCode(ctx context.Context, orderCode string) (*Confirmation, error)
	// Charge captures a recurring payment with a stored billing key.
	Charge(ctx context.Context, billingKey, orderCode string, amount decimal.Decimal) (*Confirmation, error)
}
