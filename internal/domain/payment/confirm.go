package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mercato/backoffice/internal/event"
)

// ConfirmService orchestrates the payment confirmation protocol: capture at
// the gateway first, then record the local side in one transaction, and
// compensate the capture when the local side fails. The gateway call has no
// local side effects, so a failure before capture leaves the system
// untouched.
type ConfirmService struct {
	gateway     Gateway
	payments    Repository
	orders      OrderStore
	memberships MembershipStore
	tx          TxRunner
	dispatcher  *event.Dispatcher
}

// NewConfirmService creates a ConfirmService with the required dependencies.
func NewConfirmService(
	gateway Gateway,
	payments Repository,
	orders OrderStore,
	memberships MembershipStore,
	tx TxRunner,
	dispatcher *event.Dispatcher,
) *ConfirmService {
	return &ConfirmService{
		gateway:     gateway,
		payments:    payments,
		orders:      orders,
		memberships: memberships,
		tx:          tx,
		dispatcher:  dispatcher,
	}
}

// Confirm captures the payment at the gateway and records it locally. On any
// local failure after capture it issues exactly one compensating cancel for
// the payment key before returning the original error, so money is never
// captured at the gateway without a matching local record.
func (s *ConfirmService) Confirm(ctx context.Context, paymentKey, orderCode string, amount decimal.Decimal) error {
	conf, err := s.gateway.Confirm(ctx, paymentKey, orderCode, amount)
	if err != nil {
		return err
	}
	if !conf.Amount.Equal(amount) {
		s.compensate(ctx, conf.PaymentKey, "amount mismatch")
		return ErrAmountMismatch
	}

	if err := s.Record(ctx, conf); err != nil {
		// A duplicate means the payment is already recorded locally;
		// cancelling the key would refund that legitimate capture.
		if !errors.Is(err, ErrDuplicatePayment) {
			s.compensate(ctx, conf.PaymentKey, "local processing failed")
		}
		return err
	}
	return nil
}

// Charge captures a recurring payment with a stored billing key and records
// it locally, compensating on local failure like Confirm.
func (s *ConfirmService) Charge(ctx context.Context, billingKey, orderCode string, amount decimal.Decimal) error {
	conf, err := s.gateway.Charge(ctx, billingKey, orderCode, amount)
	if err != nil {
		return err
	}
	if err := s.Record(ctx, conf); err != nil {
		if !errors.Is(err, ErrDuplicatePayment) {
			s.compensate(ctx, conf.PaymentKey, "local processing failed")
		}
		return err
	}
	return nil
}

// Record persists one confirmed payment and applies the matching aggregate
// transition in a single transaction. It performs no compensation itself;
// the reconciliation job calls it directly because the money there was
// captured long before the replay and must not be refunded on a local
// hiccup.
func (s *ConfirmService) Record(ctx context.Context, conf *Confirmation) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		intent, err := s.payments.ResolveIntent(ctx, conf.OrderCode)
		if err != nil {
			return err
		}

		p := &Payment{
			PaymentKey: conf.PaymentKey,
			OrderCode:  conf.OrderCode,
			Amount:     conf.Amount,
			Status:     StatusDone,
			Method:     conf.Method,
			ApprovedAt: conf.ApprovedAt,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}

		switch intent.Kind {
		case KindOrder:
			if err := s.orders.MarkPaid(ctx, conf.OrderCode); err != nil {
				return errors.Wrap(err, "mark order paid")
			}
			return s.dispatcher.Dispatch(ctx, event.OrderPaid{OrderCode: conf.OrderCode})
		case KindMembership:
			err := s.memberships.ActivateOrExtend(ctx, MembershipActivation{
				BuyerID:    intent.BuyerID,
				Plan:       intent.Plan,
				BillingKey: intent.BillingKey,
				OrderCode:  conf.OrderCode,
				PaidAt:     conf.ApprovedAt,
			})
			return errors.Wrap(err, "activate membership")
		default:
			return errors.Errorf("unknown payment intent kind %q", intent.Kind)
		}
	})
}

// compensate reverses a gateway capture after a local failure. A failed
// cancel is logged, not returned: the reconciliation job will converge the
// order later, and the caller needs the original error.
func (s *ConfirmService) compensate(ctx context.Context, paymentKey, reason string) {
	if err := s.gateway.Cancel(ctx, paymentKey, reason); err != nil {
		zctx.From(ctx).Error("compensating cancel failed",
			zap.String("payment_key", paymentKey),
			zap.Error(err),
		)
	}
}
