package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// UnpaidOrderSource lists order codes still awaiting payment.
type UnpaidOrderSource interface {
	ListCodesUnpaidBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Reconciler repairs orders whose confirmation callback never arrived. It
// queries the gateway for every order stuck in BEFORE_PAID past the grace
// window and settles each one as paid or cancelled; no order leaves a run
// still unconfirmed.
type Reconciler struct {
	gateway Gateway
	confirm *ConfirmService
	orders  OrderStore
	source  UnpaidOrderSource
	grace   time.Duration
	now     func() time.Time
}

// NewReconciler creates a Reconciler with the given grace window.
func NewReconciler(gateway Gateway, confirm *ConfirmService, orders OrderStore, source UnpaidOrderSource, grace time.Duration) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		confirm: confirm,
		orders:  orders,
		source:  source,
		grace:   grace,
		now:     time.Now,
	}
}

// Run processes one reconciliation batch. Each order is an isolated unit of
// work: a failure is logged and the batch moves on, so one broken order can
// never starve the rest.
func (r *Reconciler) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	cutoff := r.now().Add(-r.grace)

	codes, err := r.source.ListCodesUnpaidBefore(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "list unpaid orders")
	}
	if len(codes) == 0 {
		return nil
	}

	var paid, cancelled, failed int
	for _, code := range codes {
		switch err := r.reconcileOne(ctx, code); {
		case err == nil:
			paid++
		case errors.Is(err, errCancelledByReconcile):
			cancelled++
		default:
			failed++
			lg.Error("reconcile order failed",
				zap.String("order_code", code),
				zap.Error(err),
			)
		}
	}
	lg.Info("reconciliation finished",
		zap.Int("scanned", len(codes)),
		zap.Int("paid", paid),
		zap.Int("cancelled", cancelled),
		zap.Int("failed", failed),
	)
	return nil
}

// errCancelledByReconcile is an internal marker distinguishing the cancel
// outcome from an actual failure in the batch counters.
var errCancelledByReconcile = errors.New("order cancelled by reconciliation")

// reconcileOne resolves one stuck order. A gateway DONE replays the regular
// confirmation persistence; a racing webhook may already have recorded the
// payment, which counts as success. Anything else cancels the order.
func (r *Reconciler) reconcileOne(ctx context.Context, code string) error {
	conf, err := r.gateway.QueryByOrderCode(ctx, code)
	if err != nil || conf.Status != StatusDone {
		if cErr := r.orders.Cancel(ctx, code); cErr != nil {
			return errors.Wrap(cErr, "cancel unpaid order")
		}
		return errCancelledByReconcile
	}

	if err := r.confirm.Record(ctx, conf); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			// A webhook won the race; the order is already settled.
			return nil
		}
		return errors.Wrap(err, "replay confirmation")
	}
	return nil
}
