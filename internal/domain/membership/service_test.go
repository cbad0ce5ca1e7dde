package membership

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercato/backoffice/internal/domain/payment"
)

type mockMembershipRepo struct {
	members map[int64]*Membership

	createErr error
	updateErr error
}

func newMockMembershipRepo(members ...*Membership) *mockMembershipRepo {
	m := &mockMembershipRepo{members: make(map[int64]*Membership)}
	for _, mem := range members {
		m.members[mem.BuyerID] = mem
	}
	return m
}

func (m *mockMembershipRepo) Create(_ context.Context, mem *Membership) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.members[mem.BuyerID] = mem
	return nil
}

func (m *mockMembershipRepo) GetByBuyer(_ context.Context, buyerID int64) (*Membership, error) {
	mem, ok := m.members[buyerID]
	if !ok {
		return nil, ErrNotFound
	}
	return mem, nil
}

func (m *mockMembershipRepo) UpdateStatus(_ context.Context, buyerID int64, from, to Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	mem, ok := m.members[buyerID]
	if !ok || mem.Status != from {
		return ErrNotFound
	}
	mem.Status = to
	return nil
}

func (m *mockMembershipRepo) SetNextPayment(_ context.Context, buyerID int64, next time.Time) error {
	mem, ok := m.members[buyerID]
	if !ok {
		return ErrNotFound
	}
	mem.NextPaymentAt = next
	return nil
}

func (m *mockMembershipRepo) SetUnsubscribed(_ context.Context, buyerID int64, at time.Time) error {
	mem, ok := m.members[buyerID]
	if !ok {
		return ErrNotFound
	}
	mem.UnsubscribedAt = at
	return nil
}

func (m *mockMembershipRepo) ListDueActive(_ context.Context, cutoff time.Time) ([]Membership, error) {
	var out []Membership
	for _, mem := range m.members {
		if mem.Status == StatusActive && !mem.NextPaymentAt.After(cutoff) {
			out = append(out, *mem)
		}
	}
	return out, nil
}

func (m *mockMembershipRepo) ListExpiredReserved(_ context.Context, cutoff time.Time) ([]Membership, error) {
	var out []Membership
	for _, mem := range m.members {
		if mem.Status == StatusCancelReserved && !mem.NextPaymentAt.After(cutoff) {
			out = append(out, *mem)
		}
	}
	return out, nil
}

type recordedIntents struct {
	err     error
	intents []*payment.Intent
}

func (m *recordedIntents) RecordMembershipIntent(_ context.Context, in *payment.Intent) error {
	if m.err != nil {
		return m.err
	}
	m.intents = append(m.intents, in)
	return nil
}

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testPrices() map[Plan]decimal.Decimal {
	return map[Plan]decimal.Decimal{
		PlanMonthly: decimal.RequireFromString("4900"),
		PlanYearly:  decimal.RequireFromString("49000"),
	}
}

func newTestService(repo *mockMembershipRepo, intents *recordedIntents) *Service {
	s := NewService(repo, intents, testPrices())
	s.now = func() time.Time { return testNow }
	return s
}

func TestPlanPeriod(t *testing.T) {
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), PlanMonthly.Period(from), "AddDate normalizes short months")
	assert.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), PlanYearly.Period(from))
}

func TestSubscribe(t *testing.T) {
	intents := &recordedIntents{}
	svc := newTestService(newMockMembershipRepo(), intents)

	code, err := svc.Subscribe(context.Background(), 7, PlanMonthly, "bk_7")
	require.NoError(t, err)
	assert.Regexp(t, `^MEM-20260115-[0-9a-f]{8}$`, code)

	require.Len(t, intents.intents, 1)
	in := intents.intents[0]
	assert.Equal(t, code, in.OrderCode)
	assert.Equal(t, payment.KindMembership, in.Kind)
	assert.Equal(t, int64(7), in.BuyerID)
	assert.True(t, decimal.RequireFromString("4900").Equal(in.Amount))
	assert.Equal(t, "MONTHLY", in.Plan)
	assert.Equal(t, "bk_7", in.BillingKey)
}

func TestSubscribe_UnknownPlan(t *testing.T) {
	svc := newTestService(newMockMembershipRepo(), &recordedIntents{})

	_, err := svc.Subscribe(context.Background(), 7, Plan("WEEKLY"), "bk_7")
	require.Error(t, err)
}

func TestActivateOrExtend_FirstCharge(t *testing.T) {
	repo := newMockMembershipRepo()
	svc := newTestService(repo, &recordedIntents{})

	err := svc.ActivateOrExtend(context.Background(), payment.MembershipActivation{
		BuyerID:    7,
		Plan:       "MONTHLY",
		BillingKey: "bk_7",
		OrderCode:  "MEM-1",
		PaidAt:     testNow,
	})
	require.NoError(t, err)

	m, err := repo.GetByBuyer(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, m.Status)
	assert.Equal(t, PlanMonthly, m.Plan)
	assert.Equal(t, "bk_7", m.BillingKey)
	assert.Equal(t, testNow.AddDate(0, 1, 0), m.NextPaymentAt)
}

func TestActivateOrExtend_RecurringChargeKeepsAnniversary(t *testing.T) {
	due := time.Date(2026, 1, 15, 4, 0, 0, 0, time.UTC)
	repo := newMockMembershipRepo(&Membership{
		BuyerID:       7,
		Plan:          PlanMonthly,
		Status:        StatusActive,
		NextPaymentAt: due,
	})
	svc := newTestService(repo, &recordedIntents{})

	// The charge lands hours after the due date; the next date still extends
	// from the previous anniversary.
	err := svc.ActivateOrExtend(context.Background(), payment.MembershipActivation{
		BuyerID: 7,
		Plan:    "MONTHLY",
		PaidAt:  due.Add(9 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 1, 0), repo.members[7].NextPaymentAt)
}

func TestReserveTermination(t *testing.T) {
	repo := newMockMembershipRepo(&Membership{BuyerID: 7, Status: StatusActive})
	svc := newTestService(repo, &recordedIntents{})

	require.NoError(t, svc.ReserveTermination(context.Background(), 7))
	assert.Equal(t, StatusCancelReserved, repo.members[7].Status)
	assert.Equal(t, testNow, repo.members[7].UnsubscribedAt)
}

func TestReserveTermination_OnlyActive(t *testing.T) {
	for _, st := range []Status{StatusCancelReserved, StatusInactive} {
		repo := newMockMembershipRepo(&Membership{BuyerID: 7, Status: st})
		svc := newTestService(repo, &recordedIntents{})

		err := svc.ReserveTermination(context.Background(), 7)
		require.ErrorIs(t, err, ErrNotCancellable, "status %s", st)
	}
}

func TestReserveTermination_UnknownBuyer(t *testing.T) {
	svc := newTestService(newMockMembershipRepo(), &recordedIntents{})

	err := svc.ReserveTermination(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}
