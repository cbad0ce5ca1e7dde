package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/mercato/backoffice/internal/domain/membership"
)

const (
	insertMembershipSQL = `INSERT INTO memberships (buyer_id, plan, status, billing_key, next_payment_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	getMembershipSQL = `SELECT id, buyer_id, plan, status, billing_key, next_payment_at, unsubscribed_at, created_at, updated_at
		FROM memberships WHERE buyer_id = $1 FOR UPDATE`

	updateMembershipStatusSQL = `UPDATE memberships SET status = $3, updated_at = now()
		WHERE buyer_id = $1 AND status = $2`

	setNextPaymentSQL = `UPDATE memberships SET next_payment_at = $2, updated_at = now()
		WHERE buyer_id = $1`

	setUnsubscribedSQL = `UPDATE memberships SET unsubscribed_at = $2, updated_at = now()
		WHERE buyer_id = $1`

	listDueActiveSQL = `SELECT id, buyer_id, plan, status, billing_key, next_payment_at, unsubscribed_at, created_at, updated_at
		FROM memberships WHERE status = 'ACTIVE' AND next_payment_at <= $1 ORDER BY next_payment_at`

	listExpiredReservedSQL = `SELECT id, buyer_id, plan, status, billing_key, next_payment_at, unsubscribed_at, created_at, updated_at
		FROM memberships WHERE status = 'CANCEL_RESERVED' AND next_payment_at <= $1 ORDER BY next_payment_at`
)

var _ membership.Repository = (*MembershipRepository)(nil)

// MembershipRepository implements membership.Repository backed by PostgreSQL.
type MembershipRepository struct {
	store *Store
}

// NewMembershipRepository returns a MembershipRepository over the given store.
func NewMembershipRepository(store *Store) *MembershipRepository {
	return &MembershipRepository{store: store}
}

// Create persists a new membership.
func (r *MembershipRepository) Create(ctx context.Context, m *membership.Membership) error {
	err := r.store.db(ctx).QueryRow(ctx, insertMembershipSQL,
		m.BuyerID, m.Plan, m.Status, m.BillingKey, m.NextPaymentAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("creating membership for buyer %d: %w", m.BuyerID, err)
	}
	return nil
}

// GetByBuyer loads the membership of one buyer.
func (r *MembershipRepository) GetByBuyer(ctx context.Context, buyerID int64) (*membership.Membership, error) {
	var (
		m            membership.Membership
		unsubscribed sql.NullTime
	)
	err := r.store.db(ctx).QueryRow(ctx, getMembershipSQL, buyerID).Scan(
		&m.ID, &m.BuyerID, &m.Plan, &m.Status, &m.BillingKey,
		&m.NextPaymentAt, &unsubscribed, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, membership.ErrNotFound
		}
		return nil, fmt.Errorf("getting membership for buyer %d: %w", buyerID, err)
	}
	if unsubscribed.Valid {
		m.UnsubscribedAt = unsubscribed.Time
	}
	return &m, nil
}

// UpdateStatus applies a conditional status change.
func (r *MembershipRepository) UpdateStatus(ctx context.Context, buyerID int64, from, to membership.Status) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateMembershipStatusSQL, buyerID, from, to)
	if err != nil {
		return fmt.Errorf("updating membership status for buyer %d: %w", buyerID, err)
	}
	if tag.RowsAffected() == 0 {
		return membership.ErrNotFound
	}
	return nil
}

// SetNextPayment moves the billing anniversary forward.
func (r *MembershipRepository) SetNextPayment(ctx context.Context, buyerID int64, next time.Time) error {
	_, err := r.store.db(ctx).Exec(ctx, setNextPaymentSQL, buyerID, next)
	if err != nil {
		return fmt.Errorf("setting next payment for buyer %d: %w", buyerID, err)
	}
	return nil
}

// SetUnsubscribed records when the buyer reserved termination.
func (r *MembershipRepository) SetUnsubscribed(ctx context.Context, buyerID int64, at time.Time) error {
	_, err := r.store.db(ctx).Exec(ctx, setUnsubscribedSQL, buyerID, at)
	if err != nil {
		return fmt.Errorf("setting unsubscribed time for buyer %d: %w", buyerID, err)
	}
	return nil
}

// ListDueActive returns active memberships whose billing date has passed.
func (r *MembershipRepository) ListDueActive(ctx context.Context, cutoff time.Time) ([]membership.Membership, error) {
	rows, err := r.store.db(ctx).Query(ctx, listDueActiveSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing due memberships: %w", err)
	}
	return pgx.CollectRows(rows, scanMembership)
}

// ListExpiredReserved returns cancellation-reserved memberships whose
// paid-through date has passed.
func (r *MembershipRepository) ListExpiredReserved(ctx context.Context, cutoff time.Time) ([]membership.Membership, error) {
	rows, err := r.store.db(ctx).Query(ctx, listExpiredReservedSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expired reserved memberships: %w", err)
	}
	return pgx.CollectRows(rows, scanMembership)
}

func scanMembership(row pgx.CollectableRow) (membership.Membership, error) {
	var (
		m            membership.Membership
		unsubscribed sql.NullTime
	)
	err := row.Scan(&m.ID, &m.BuyerID, &m.Plan, &m.Status, &m.BillingKey,
		&m.NextPaymentAt, &unsubscribed, &m.CreatedAt, &m.UpdatedAt)
	if unsubscribed.Valid {
		m.UnsubscribedAt = unsubscribed.Time
	}
	return m, err
}
