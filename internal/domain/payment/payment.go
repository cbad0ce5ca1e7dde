package payment

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the gateway-side lifecycle of a payment.
type Status string

const (
	StatusReady    Status = "READY"
	StatusDone     Status = "DONE"
	StatusCanceled Status = "CANCELED"
	StatusExpired  Status = "EXPIRED"
	StatusAborted  Status = "ABORTED"
)

// Payment is one successful gateway confirmation. A row is created only by
// the confirmation path and never mutated after DONE, except by an explicit
// cancellation event producing a new terminal status.
type Payment struct {
	ID         int64
	PaymentKey string
	OrderCode  string
	Amount     decimal.Decimal
	Status     Status
	Method     string
	ApprovedAt time.Time
	CreatedAt  time.Time
}

// IntentKind discriminates what a confirmed payment completes.
type IntentKind string

const (
	KindOrder      IntentKind = "ORDER"
	KindMembership IntentKind = "MEMBERSHIP"
)

// Intent is the payment routing record registered at order or membership
// creation time. It replaces branching on the order code prefix: the kind is
// fixed when the code is issued, not re-derived from the string later.
type Intent struct {
	OrderCode  string
	Kind       IntentKind
	BuyerID    int64
	Amount     decimal.Decimal
	Plan       string // membership intents only
	BillingKey string // membership intents only
}

// NewCode builds an externally visible order code: prefix, date, and a
// random suffix, e.g. ORD-20260115-ab12cd34. Prefixes stay on the wire for
// operator readability, but routing never parses them; it goes through the
// Intent registered with the code.
func NewCode(prefix string, at time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), hex.EncodeToString(id[:4]))
}

// Sentinel errors for the confirmation protocol.
var (
	ErrOrderNotFound    = fmt.Errorf("no order or membership matches the order code")
	ErrAmountMismatch   = fmt.Errorf("confirmed amount does not match the requested amount")
	ErrDuplicatePayment = fmt.Errorf("payment already recorded for this key or order code")
	ErrPaymentNotFound  = fmt.Errorf("gateway has no payment for this order code")
)

// GatewayError is a transport- or provider-side rejection from the external
// payment gateway.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request: %s (%s)", e.Message, e.Code)
}

// Repository persists payments and resolves intents. Create must enforce
// uniqueness on both payment key and order code, returning
// ErrDuplicatePayment, which is the backstop against a webhook racing the
// reconciliation job.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	RecordIntent(ctx context.Context, in *Intent) error
	ResolveIntent(ctx context.Context, orderCode string) (*Intent, error)
}

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStore is the slice of the order service the confirmation path needs.
type OrderStore interface {
	MarkPaid(ctx context.Context, code string) error
	Cancel(ctx context.Context, code string) error
}

// MembershipActivation carries the data a confirmed membership payment
// applies: first payment activates, a recurring one extends.
type MembershipActivation struct {
	BuyerID    int64
	Plan       string
	BillingKey string
	OrderCode  string
	PaidAt     time.Time
}

// MembershipStore is the slice of the membership service the confirmation
// path needs.
type MembershipStore interface {
	ActivateOrExtend(ctx context.Context, in MembershipActivation) error
}
