package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payout lifecycle of one settlement row.
type Status string

const (
	StatusReady     Status = "READY"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Settlement is the net payout owed to one seller for one line item. Gross,
// commission and net are frozen at creation time; a later commission policy
// change never rewrites an existing row.
type Settlement struct {
	ID         int64
	OrderCode  string
	SellerID   int64
	ProductID  int64
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ErrAlreadyFinalized reports an attempt to confirm a settlement that is
// already cancelled or paid out.
var ErrAlreadyFinalized = fmt.Errorf("settlement is already finalized")

// Split computes the commission and net payout for a gross amount. The
// commission is gross times rate rounded half-up to a whole amount, so
// commission plus net always equals gross exactly.
func Split(gross, rate decimal.Decimal) (commission, net decimal.Decimal) {
	commission = gross.Mul(rate).Round(0)
	net = gross.Sub(commission)
	return commission, net
}

// Repository persists settlement rows.
type Repository interface {
	CreateBatch(ctx context.Context, rows []Settlement) error
	ListByOrder(ctx context.Context, orderCode string) ([]Settlement, error)
	ListByStatus(ctx context.Context, status Status) ([]Settlement, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	CancelByOrder(ctx context.Context, orderCode string) error
}
