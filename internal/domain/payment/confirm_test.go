package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercato/backoffice/internal/event"
)

var approvedAt = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type mockGateway struct {
	confirmResp *Confirmation
	confirmErr  error
	chargeResp  *Confirmation
	chargeErr   error
	queryResp   map[string]*Confirmation
	queryErr    error

	cancelled []string
	cancelErr error
}

func (m *mockGateway) Confirm(_ context.Context, _, _ string, _ decimal.Decimal) (*Confirmation, error) {
	return m.confirmResp, m.confirmErr
}

func (m *mockGateway) Cancel(_ context.Context, paymentKey, _ string) error {
	m.cancelled = append(m.cancelled, paymentKey)
	return m.cancelErr
}

func (m *mockGateway) QueryByOrderCode(_ context.Context, orderCode string) (*Confirmation, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	conf, ok := m.queryResp[orderCode]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return conf, nil
}

func (m *mockGateway) Charge(_ context.Context, _, _ string, _ decimal.Decimal) (*Confirmation, error) {
	return m.chargeResp, m.chargeErr
}

type mockPaymentRepo struct {
	intents map[string]*Intent

	createErr error
	created   []*Payment
	byKey     map[string]bool
}

func newMockPaymentRepo(intents ...*Intent) *mockPaymentRepo {
	m := &mockPaymentRepo{
		intents: make(map[string]*Intent),
		byKey:   make(map[string]bool),
	}
	for _, in := range intents {
		m.intents[in.OrderCode] = in
	}
	return m
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.byKey[p.PaymentKey] {
		return ErrDuplicatePayment
	}
	m.byKey[p.PaymentKey] = true
	m.created = append(m.created, p)
	return nil
}

func (m *mockPaymentRepo) RecordIntent(_ context.Context, in *Intent) error {
	m.intents[in.OrderCode] = in
	return nil
}

func (m *mockPaymentRepo) ResolveIntent(_ context.Context, orderCode string) (*Intent, error) {
	in, ok := m.intents[orderCode]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return in, nil
}

type mockOrderStore struct {
	markPaidErr error
	paid        []string
	cancelErr   error
	cancelled   []string
}

func (m *mockOrderStore) MarkPaid(_ context.Context, code string) error {
	if m.markPaidErr != nil {
		return m.markPaidErr
	}
	m.paid = append(m.paid, code)
	return nil
}

func (m *mockOrderStore) Cancel(_ context.Context, code string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, code)
	return nil
}

type mockMembershipStore struct {
	err       error
	activated []MembershipActivation
}

func (m *mockMembershipStore) ActivateOrExtend(_ context.Context, in MembershipActivation) error {
	if m.err != nil {
		return m.err
	}
	m.activated = append(m.activated, in)
	return nil
}

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func doneConfirmation(orderCode string, amount string) *Confirmation {
	return &Confirmation{
		PaymentKey: "pay_" + orderCode,
		OrderCode:  orderCode,
		Status:     StatusDone,
		Amount:     decimal.RequireFromString(amount),
		Method:     "CARD",
		ApprovedAt: approvedAt,
	}
}

func newConfirmService(gw *mockGateway, repo *mockPaymentRepo, orders *mockOrderStore, members *mockMembershipStore, dispatcher *event.Dispatcher) *ConfirmService {
	if dispatcher == nil {
		dispatcher = event.NewDispatcher()
	}
	return NewConfirmService(gw, repo, orders, members, passTx{}, dispatcher)
}

func TestConfirm_OrderPayment(t *testing.T) {
	gw := &mockGateway{confirmResp: doneConfirmation("ORD-1", "28500")}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder, BuyerID: 7, Amount: decimal.RequireFromString("28500")})
	orders := &mockOrderStore{}

	var got []event.Event
	dispatcher := event.NewDispatcher()
	dispatcher.Subscribe(event.OrderPaid{}.Name(), func(_ context.Context, ev event.Event) error {
		got = append(got, ev)
		return nil
	})
	svc := newConfirmService(gw, repo, orders, &mockMembershipStore{}, dispatcher)

	err := svc.Confirm(context.Background(), "pay_ORD-1", "ORD-1", decimal.RequireFromString("28500"))
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, StatusDone, repo.created[0].Status)
	assert.Equal(t, []string{"ORD-1"}, orders.paid)
	require.Len(t, got, 1)
	assert.Equal(t, event.OrderPaid{OrderCode: "ORD-1"}, got[0])
	assert.Empty(t, gw.cancelled, "successful confirmation never compensates")
}

func TestConfirm_GatewayRejection(t *testing.T) {
	gw := &mockGateway{confirmErr: &GatewayError{Code: "REJECT_CARD", Message: "card declined"}}
	repo := newMockPaymentRepo()
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Confirm(context.Background(), "pay_1", "ORD-1", decimal.RequireFromString("100"))
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)

	assert.Empty(t, repo.created, "failure before capture leaves no local state")
	assert.Empty(t, gw.cancelled, "nothing was captured, nothing to compensate")
}

func TestConfirm_AmountMismatchCompensates(t *testing.T) {
	gw := &mockGateway{confirmResp: doneConfirmation("ORD-1", "28500")}
	repo := newMockPaymentRepo()
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Confirm(context.Background(), "pay_ORD-1", "ORD-1", decimal.RequireFromString("10000"))
	require.ErrorIs(t, err, ErrAmountMismatch)

	assert.Equal(t, []string{"pay_ORD-1"}, gw.cancelled, "exactly one compensating cancel")
	assert.Empty(t, repo.created)
}

func TestConfirm_LocalFailureCompensatesOnce(t *testing.T) {
	gw := &mockGateway{confirmResp: doneConfirmation("ORD-1", "28500")}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder})
	repo.createErr = errors.New("disk full")
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Confirm(context.Background(), "pay_ORD-1", "ORD-1", decimal.RequireFromString("28500"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAmountMismatch)

	assert.Equal(t, []string{"pay_ORD-1"}, gw.cancelled, "exactly one compensating cancel")
}

func TestConfirm_CompensationFailureKeepsOriginalError(t *testing.T) {
	gw := &mockGateway{
		confirmResp: doneConfirmation("ORD-1", "28500"),
		cancelErr:   &GatewayError{Code: "NETWORK_ERROR", Message: "timeout"},
	}
	repo := newMockPaymentRepo() // no intent registered
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Confirm(context.Background(), "pay_ORD-1", "ORD-1", decimal.RequireFromString("28500"))
	require.ErrorIs(t, err, ErrOrderNotFound, "failed cancel must not mask the local error")
}

func TestConfirm_DuplicateRejected(t *testing.T) {
	gw := &mockGateway{confirmResp: doneConfirmation("ORD-1", "28500")}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder})
	repo.byKey["pay_ORD-1"] = true
	orders := &mockOrderStore{}
	svc := newConfirmService(gw, repo, orders, &mockMembershipStore{}, nil)

	err := svc.Confirm(context.Background(), "pay_ORD-1", "ORD-1", decimal.RequireFromString("28500"))
	require.ErrorIs(t, err, ErrDuplicatePayment)
	assert.Empty(t, orders.paid, "duplicate never re-applies the order transition")
	assert.Empty(t, gw.cancelled, "the recorded payment must not be refunded")
}

func TestConfirm_MembershipPayment(t *testing.T) {
	gw := &mockGateway{confirmResp: doneConfirmation("MEM-1", "4900")}
	repo := newMockPaymentRepo(&Intent{
		OrderCode:  "MEM-1",
		Kind:       KindMembership,
		BuyerID:    7,
		Amount:     decimal.RequireFromString("4900"),
		Plan:       "MONTHLY",
		BillingKey: "bk_7",
	})
	orders := &mockOrderStore{}
	members := &mockMembershipStore{}
	svc := newConfirmService(gw, repo, orders, members, nil)

	err := svc.Confirm(context.Background(), "pay_MEM-1", "MEM-1", decimal.RequireFromString("4900"))
	require.NoError(t, err)

	require.Len(t, members.activated, 1)
	act := members.activated[0]
	assert.Equal(t, int64(7), act.BuyerID)
	assert.Equal(t, "MONTHLY", act.Plan)
	assert.Equal(t, "bk_7", act.BillingKey)
	assert.Equal(t, approvedAt, act.PaidAt)
	assert.Empty(t, orders.paid, "membership payment never touches orders")
}

func TestCharge_RecurringPayment(t *testing.T) {
	gw := &mockGateway{chargeResp: doneConfirmation("MEM-2", "4900")}
	repo := newMockPaymentRepo(&Intent{OrderCode: "MEM-2", Kind: KindMembership, BuyerID: 7, Plan: "MONTHLY"})
	members := &mockMembershipStore{}
	svc := newConfirmService(gw, repo, &mockOrderStore{}, members, nil)

	err := svc.Charge(context.Background(), "bk_7", "MEM-2", decimal.RequireFromString("4900"))
	require.NoError(t, err)
	require.Len(t, members.activated, 1)
	assert.Empty(t, gw.cancelled)
}

func TestCharge_LocalFailureCompensates(t *testing.T) {
	gw := &mockGateway{chargeResp: doneConfirmation("MEM-2", "4900")}
	repo := newMockPaymentRepo() // no intent registered
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Charge(context.Background(), "bk_7", "MEM-2", decimal.RequireFromString("4900"))
	require.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, []string{"pay_MEM-2"}, gw.cancelled)
}

func TestRecord_NeverCompensates(t *testing.T) {
	gw := &mockGateway{}
	repo := newMockPaymentRepo() // no intent registered
	svc := newConfirmService(gw, repo, &mockOrderStore{}, &mockMembershipStore{}, nil)

	err := svc.Record(context.Background(), doneConfirmation("ORD-1", "28500"))
	require.ErrorIs(t, err, ErrOrderNotFound)
	assert.Empty(t, gw.cancelled, "replayed confirmations must not refund on a local hiccup")
}

func TestNewCode(t *testing.T) {
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	code := NewCode("ORD", at)
	assert.Regexp(t, `^ORD-20260115-[0-9a-f]{8}$`, code)
	assert.NotEqual(t, code, NewCode("ORD", at), "suffix is random")
}
