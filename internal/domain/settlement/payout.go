package settlement

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FundsTransferer moves a net payout to a seller's account. It is an
// external boundary like the payment gateway.
type FundsTransferer interface {
	Transfer(ctx context.Context, sellerID int64, amount decimal.Decimal, reference string) error
}

// PayoutRunner batch-executes confirmed payouts on a fixed calendar
// schedule.
type PayoutRunner struct {
	repo     Repository
	transfer FundsTransferer
}

// NewPayoutRunner creates a PayoutRunner.
func NewPayoutRunner(repo Repository, transfer FundsTransferer) *PayoutRunner {
	return &PayoutRunner{repo: repo, transfer: transfer}
}

// Run transfers every CONFIRMED settlement and marks it COMPLETED. A
// rejected transfer is logged with the seller id and the row stays CONFIRMED
// so the next run retries it; it is never rolled back to READY.
func (r *PayoutRunner) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	rows, err := r.repo.ListByStatus(ctx, StatusConfirmed)
	if err != nil {
		return errors.Wrap(err, "list confirmed settlements")
	}
	if len(rows) == 0 {
		return nil
	}

	var completed, failed int
	for _, row := range rows {
		if err := r.payOne(ctx, row); err != nil {
			failed++
			lg.Error("settlement payout failed",
				zap.Int64("seller_id", row.SellerID),
				zap.String("order_code", row.OrderCode),
				zap.Error(err),
			)
			continue
		}
		completed++
	}
	lg.Info("settlement payout finished",
		zap.Int("scanned", len(rows)),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
	return nil
}

func (r *PayoutRunner) payOne(ctx context.Context, row Settlement) error {
	if err := r.transfer.Transfer(ctx, row.SellerID, row.Net, row.OrderCode); err != nil {
		return err
	}
	return r.repo.UpdateStatus(ctx, row.ID, StatusConfirmed, StatusCompleted)
}
