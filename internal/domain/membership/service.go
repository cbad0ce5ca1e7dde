package membership

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/payment"
)

// IntentRecorder registers a membership payment intent so the confirmation
// path can route the charge back to this aggregate.
type IntentRecorder interface {
	RecordMembershipIntent(ctx context.Context, in *payment.Intent) error
}

// Service owns every membership status mutation.
type Service struct {
	repo       Repository
	intents    IntentRecorder
	planPrices map[Plan]decimal.Decimal
	now        func() time.Time
}

// NewService creates a membership Service. planPrices carries the charge
// amount per plan, injected from configuration.
func NewService(repo Repository, intents IntentRecorder, planPrices map[Plan]decimal.Decimal) *Service {
	return &Service{
		repo:       repo,
		intents:    intents,
		planPrices: planPrices,
		now:        time.Now,
	}
}

// PlanPrice returns the charge amount for a plan.
func (s *Service) PlanPrice(plan Plan) (decimal.Decimal, error) {
	price, ok := s.planPrices[plan]
	if !ok {
		return decimal.Zero, errors.Errorf("unknown membership plan %q", plan)
	}
	return price, nil
}

// Subscribe issues the order code and payment intent for a buyer's first
// membership charge. The membership itself is created only once that charge
// is confirmed.
func (s *Service) Subscribe(ctx context.Context, buyerID int64, plan Plan, billingKey string) (string, error) {
	price, err := s.PlanPrice(plan)
	if err != nil {
		return "", err
	}
	code := payment.NewCode("MEM", s.now())
	err = s.intents.RecordMembershipIntent(ctx, &payment.Intent{
		OrderCode:  code,
		Kind:       payment.KindMembership,
		BuyerID:    buyerID,
		Amount:     price,
		Plan:       string(plan),
		BillingKey: billingKey,
	})
	if err != nil {
		return "", errors.Wrap(err, "record membership intent")
	}
	return code, nil
}

var _ payment.MembershipStore = (*Service)(nil)

// ActivateOrExtend applies one confirmed membership charge: the first charge
// creates the membership as ACTIVE, a recurring charge pushes the
// next-payment date forward by one billing period.
func (s *Service) ActivateOrExtend(ctx context.Context, in payment.MembershipActivation) error {
	plan := Plan(in.Plan)
	existing, err := s.repo.GetByBuyer(ctx, in.BuyerID)
	switch {
	case errors.Is(err, ErrNotFound):
		m := &Membership{
			BuyerID:       in.BuyerID,
			Plan:          plan,
			Status:        StatusActive,
			BillingKey:    in.BillingKey,
			NextPaymentAt: plan.Period(in.PaidAt),
		}
		return s.repo.Create(ctx, m)
	case err != nil:
		return err
	}
	// Recurring charge: keep the billing anniversary by extending from the
	// previous due date, not from the charge time.
	return s.repo.SetNextPayment(ctx, in.BuyerID, plan.Period(existing.NextPaymentAt))
}

// ReserveTermination marks an active membership for cancellation. The member
// keeps access until the period already paid for elapses; the termination
// job finishes the job after that date.
func (s *Service) ReserveTermination(ctx context.Context, buyerID int64) error {
	m, err := s.repo.GetByBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	if m.Status != StatusActive {
		return ErrNotCancellable
	}
	if err := s.repo.UpdateStatus(ctx, buyerID, StatusActive, StatusCancelReserved); err != nil {
		return err
	}
	return s.repo.SetUnsubscribed(ctx, buyerID, s.now())
}
