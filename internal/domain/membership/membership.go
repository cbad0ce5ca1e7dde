package membership

import (
	"context"
	"fmt"
	"time"
)

// Status is the subscription lifecycle of a member.
type Status string

const (
	StatusActive         Status = "ACTIVE"
	StatusCancelReserved Status = "CANCEL_RESERVED"
	StatusInactive       Status = "INACTIVE"
)

// Plan identifies the billing cadence of a subscription.
type Plan string

const (
	PlanMonthly Plan = "MONTHLY"
	PlanYearly  Plan = "YEARLY"
)

// Period returns the billing interval added to the next-payment date after
// each successful charge.
func (p Plan) Period(from time.Time) time.Time {
	if p == PlanYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// Membership is one buyer's recurring-billing subscription. A cancelled
// member is not deleted: it moves to CANCEL_RESERVED and keeps its access
// until the paid-through date, after which the termination job flips it to
// INACTIVE.
type Membership struct {
	ID             int64
	BuyerID        int64
	Plan           Plan
	Status         Status
	BillingKey     string
	NextPaymentAt  time.Time
	UnsubscribedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Sentinel errors for membership operations.
var (
	ErrNotFound       = fmt.Errorf("membership not found")
	ErrNotCancellable = fmt.Errorf("only an active membership can reserve termination")
)

// Repository persists memberships.
type Repository interface {
	Create(ctx context.Context, m *Membership) error
	GetByBuyer(ctx context.Context, buyerID int64) (*Membership, error)
	UpdateStatus(ctx context.Context, buyerID int64, from, to Status) error
	SetNextPayment(ctx context.Context, buyerID int64, next time.Time) error
	SetUnsubscribed(ctx context.Context, buyerID int64, at time.Time) error
	ListDueActive(ctx context.Context, cutoff time.Time) ([]Membership, error)
	ListExpiredReserved(ctx context.Context, cutoff time.Time) ([]Membership, error)
}
