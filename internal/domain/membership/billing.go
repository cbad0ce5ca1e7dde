package membership

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mercato/backoffice/internal/domain/payment"
)

// Charger executes a recurring charge with a stored billing key. Implemented
// by the payment confirmation service so scheduled charges go through the
// same persistence and compensation path as interactive ones.
type Charger interface {
	Charge(ctx context.Context, billingKey, orderCode string, amount decimal.Decimal) error
}

// BillingRunner charges active members whose billing anniversary has passed.
type BillingRunner struct {
	repo    Repository
	service *Service
	charger Charger
	now     func() time.Time
}

// NewBillingRunner creates a BillingRunner.
func NewBillingRunner(repo Repository, service *Service, charger Charger) *BillingRunner {
	return &BillingRunner{
		repo:    repo,
		service: service,
		charger: charger,
		now:     time.Now,
	}
}

// Run charges every due active membership. A failed charge is logged and
// skipped; the membership stays ACTIVE with its due date untouched, so the
// next daily run retries it. One day of billing drift is accepted over
// blocking the batch.
func (r *BillingRunner) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	now := r.now()

	due, err := r.repo.ListDueActive(ctx, now)
	if err != nil {
		return errors.Wrap(err, "list due memberships")
	}
	if len(due) == 0 {
		return nil
	}

	var charged, failed int
	for _, m := range due {
		if err := r.chargeOne(ctx, m, now); err != nil {
			failed++
			lg.Error("membership charge failed",
				zap.Int64("buyer_id", m.BuyerID),
				zap.Error(err),
			)
			continue
		}
		charged++
	}
	lg.Info("membership billing finished",
		zap.Int("due", len(due)),
		zap.Int("charged", charged),
		zap.Int("failed", failed),
	)
	return nil
}

func (r *BillingRunner) chargeOne(ctx context.Context, m Membership, now time.Time) error {
	price, err := r.service.PlanPrice(m.Plan)
	if err != nil {
		return err
	}
	code := payment.NewCode("MEM", now)
	err = r.service.intents.RecordMembershipIntent(ctx, &payment.Intent{
		OrderCode:  code,
		Kind:       payment.KindMembership,
		BuyerID:    m.BuyerID,
		Amount:     price,
		Plan:       string(m.Plan),
		BillingKey: m.BillingKey,
	})
	if err != nil {
		return errors.Wrap(err, "record recurring intent")
	}
	return r.charger.Charge(ctx, m.BillingKey, code, price)
}

// TerminationRunner finalizes cancellation-reserved memberships whose
// paid-through date has elapsed. A pure status flip with no external call.
type TerminationRunner struct {
	repo Repository
	now  func() time.Time
}

// NewTerminationRunner creates a TerminationRunner.
func NewTerminationRunner(repo Repository) *TerminationRunner {
	return &TerminationRunner{repo: repo, now: time.Now}
}

// Run deactivates every reserved membership past its paid-through date.
// Per-membership failures are logged and skipped.
func (r *TerminationRunner) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	expired, err := r.repo.ListExpiredReserved(ctx, r.now())
	if err != nil {
		return errors.Wrap(err, "list expired reserved memberships")
	}

	var terminated int
	for _, m := range expired {
		if err := r.repo.UpdateStatus(ctx, m.BuyerID, StatusCancelReserved, StatusInactive); err != nil {
			lg.Error("membership termination failed",
				zap.Int64("buyer_id", m.BuyerID),
				zap.Error(err),
			)
			continue
		}
		terminated++
	}
	if len(expired) > 0 {
		lg.Info("membership termination finished",
			zap.Int("expired", len(expired)),
			zap.Int("terminated", terminated),
		)
	}
	return nil
}
