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

type mockUnpaidSource struct {
	codes []string
	err   error

	gotCutoff time.Time
}

func (m *mockUnpaidSource) ListCodesUnpaidBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	m.gotCutoff = cutoff
	return m.codes, m.err
}

func newReconciler(gw *mockGateway, repo *mockPaymentRepo, orders *mockOrderStore, source *mockUnpaidSource) *Reconciler {
	confirm := newConfirmService(gw, repo, orders, &mockMembershipStore{}, event.NewDispatcher())
	r := NewReconciler(gw, confirm, orders, source, 30*time.Minute)
	r.now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestReconcile_CutoffHonorsGraceWindow(t *testing.T) {
	source := &mockUnpaidSource{}
	r := newReconciler(&mockGateway{}, newMockPaymentRepo(), &mockOrderStore{}, source)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 1, 15, 11, 30, 0, 0, time.UTC), source.gotCutoff)
}

func TestReconcile_PaidAtGateway(t *testing.T) {
	gw := &mockGateway{queryResp: map[string]*Confirmation{
		"ORD-1": doneConfirmation("ORD-1", "28500"),
	}}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder})
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1"}}
	r := newReconciler(gw, repo, orders, source)

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, repo.created, 1, "gateway DONE replays the confirmation persistence")
	assert.Equal(t, []string{"ORD-1"}, orders.paid)
	assert.Empty(t, orders.cancelled)
}

func TestReconcile_UnknownAtGatewayCancels(t *testing.T) {
	gw := &mockGateway{queryResp: map[string]*Confirmation{}}
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1"}}
	r := newReconciler(gw, newMockPaymentRepo(), orders, source)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"ORD-1"}, orders.cancelled)
}

func TestReconcile_AbortedAtGatewayCancels(t *testing.T) {
	aborted := doneConfirmation("ORD-1", "28500")
	aborted.Status = StatusAborted
	gw := &mockGateway{queryResp: map[string]*Confirmation{"ORD-1": aborted}}
	repo := newMockPaymentRepo()
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1"}}
	r := newReconciler(gw, repo, orders, source)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"ORD-1"}, orders.cancelled)
	assert.Empty(t, repo.created, "a non-DONE payment is never recorded")
}

func TestReconcile_DuplicateMeansWebhookWon(t *testing.T) {
	gw := &mockGateway{queryResp: map[string]*Confirmation{
		"ORD-1": doneConfirmation("ORD-1", "28500"),
	}}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder})
	repo.byKey["pay_ORD-1"] = true
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1"}}
	r := newReconciler(gw, repo, orders, source)

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, orders.cancelled, "an already-recorded payment is success, not a cancel")
}

func TestReconcile_PerOrderIsolation(t *testing.T) {
	gw := &mockGateway{queryResp: map[string]*Confirmation{
		"ORD-2": doneConfirmation("ORD-2", "5500"),
	}}
	// ORD-2 has an intent and reconciles fine. ORD-1 is unknown at the
	// gateway and its cancel fails; ORD-3 is unknown and cancels cleanly.
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-2", Kind: KindOrder})
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1", "ORD-2", "ORD-3"}}

	failingOrders := &flakyCancelStore{inner: orders, failCode: "ORD-1"}
	confirm := newConfirmService(gw, repo, orders, &mockMembershipStore{}, event.NewDispatcher())
	r := NewReconciler(gw, confirm, failingOrders, source, 30*time.Minute)
	r.now = time.Now

	require.NoError(t, r.Run(context.Background()), "a broken order never fails the batch")

	assert.Equal(t, []string{"ORD-2"}, orders.paid)
	assert.Equal(t, []string{"ORD-3"}, orders.cancelled)
}

// flakyCancelStore fails Cancel for one order code and delegates the rest.
type flakyCancelStore struct {
	inner    *mockOrderStore
	failCode string
}

func (s *flakyCancelStore) MarkPaid(ctx context.Context, code string) error {
	return s.inner.MarkPaid(ctx, code)
}

func (s *flakyCancelStore) Cancel(ctx context.Context, code string) error {
	if code == s.failCode {
		return errors.New("connection reset")
	}
	return s.inner.Cancel(ctx, code)
}

func TestReconcile_ListFailureAbortsRun(t *testing.T) {
	source := &mockUnpaidSource{err: errors.New("db down")}
	r := newReconciler(&mockGateway{}, newMockPaymentRepo(), &mockOrderStore{}, source)

	require.Error(t, r.Run(context.Background()))
}

func TestReconcile_AmountFromGatewayIsAuthoritative(t *testing.T) {
	// The stuck order pays whatever the gateway actually captured; there is
	// no interactive amount to cross-check at replay time.
	conf := doneConfirmation("ORD-1", "99999")
	gw := &mockGateway{queryResp: map[string]*Confirmation{"ORD-1": conf}}
	repo := newMockPaymentRepo(&Intent{OrderCode: "ORD-1", Kind: KindOrder, Amount: decimal.RequireFromString("28500")})
	orders := &mockOrderStore{}
	source := &mockUnpaidSource{codes: []string{"ORD-1"}}
	r := newReconciler(gw, repo, orders, source)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, repo.created, 1)
	assert.True(t, conf.Amount.Equal(repo.created[0].Amount))
}
