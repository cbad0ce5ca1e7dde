package settlement

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/order"
)

// Engine owns every settlement status mutation. It never writes order state;
// the coupling to the order lifecycle runs through the event dispatcher.
type Engine struct {
	repo Repository
	rate decimal.Decimal
}

// NewEngine creates an Engine with the platform commission rate. The rate is
// captured per row at creation time, not re-read later.
func NewEngine(repo Repository, commissionRate decimal.Decimal) *Engine {
	return &Engine{repo: repo, rate: commissionRate}
}

// CreateForOrder seeds one READY settlement row per line item of a just-paid
// order.
func (e *Engine) CreateForOrder(ctx context.Context, o *order.Order) error {
	if len(o.Details) == 0 {
		return nil
	}
	rows := make([]Settlement, len(o.Details))
	for i, d := range o.Details {
		gross := d.LineTotal()
		commission, net := Split(gross, e.rate)
		rows[i] = Settlement{
			OrderCode:  o.Code,
			SellerID:   d.SellerID,
			ProductID:  d.ProductID,
			Gross:      gross,
			Commission: commission,
			Net:        net,
			Status:     StatusReady,
		}
	}
	return errors.Wrap(e.repo.CreateBatch(ctx, rows), "create settlements")
}

// MarkConfirmed advances every settlement of an order from READY to
// CONFIRMED. Rows already CONFIRMED are left alone; a cancelled or completed
// row fails with ErrAlreadyFinalized.
func (e *Engine) MarkConfirmed(ctx context.Context, orderCode string) error {
	rows, err := e.repo.ListByOrder(ctx, orderCode)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := e.confirmRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// MarkItemConfirmed advances the settlement of a single line item, used when
// buyer purchase-confirmation is scoped to one item.
func (e *Engine) MarkItemConfirmed(ctx context.Context, orderCode string, sellerID, productID int64) error {
	rows, err := e.repo.ListByOrder(ctx, orderCode)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.SellerID != sellerID || row.ProductID != productID {
			continue
		}
		return e.confirmRow(ctx, row)
	}
	return errors.Errorf("no settlement for order %s seller %d product %d", orderCode, sellerID, productID)
}

func (e *Engine) confirmRow(ctx context.Context, row Settlement) error {
	switch row.Status {
	case StatusConfirmed:
		return nil
	case StatusCancelled, StatusCompleted:
		return ErrAlreadyFinalized
	}
	return e.repo.UpdateStatus(ctx, row.ID, StatusReady, StatusConfirmed)
}

// CancelForOrder cancels every not-yet-completed settlement of an order,
// without checking prior status. Used when the order is cancelled upstream.
func (e *Engine) CancelForOrder(ctx context.Context, orderCode string) error {
	return errors.Wrap(e.repo.CancelByOrder(ctx, orderCode), "cancel settlements")
}
