package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (payment_key, order_code, amount, status, method, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	insertIntentSQL = `INSERT INTO payment_intents (order_code, kind, buyer_id, amount, plan, billing_key)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getIntentSQL = `SELECT order_code, kind, buyer_id, amount, plan, billing_key
		FROM payment_intents WHERE order_code = $1`
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	store *Store
}

// NewPaymentRepository returns a PaymentRepository over the given store.
func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store}
}

// Create inserts one payment row. The unique constraints on payment_key and
// order_code reject a duplicate before any second side effect can happen.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.store.db(ctx).QueryRow(ctx, insertPaymentSQL,
		p.PaymentKey, p.OrderCode, p.Amount, p.Status, p.Method, p.ApprovedAt,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return payment.ErrDuplicatePayment
		}
		return fmt.Errorf("creating payment %q: %w", p.PaymentKey, err)
	}
	return nil
}

// RecordIntent registers a payment intent for an order code.
func (r *PaymentRepository) RecordIntent(ctx context.Context, in *payment.Intent) error {
	_, err := r.store.db(ctx).Exec(ctx, insertIntentSQL,
		in.OrderCode, in.Kind, in.BuyerID, in.Amount, in.Plan, in.BillingKey,
	)
	if err != nil {
		return fmt.Errorf("recording intent for %q: %w", in.OrderCode, err)
	}
	return nil
}

// RecordOrderIntent registers the intent for a regular order purchase.
func (r *PaymentRepository) RecordOrderIntent(ctx context.Context, orderCode string, buyerID int64, amount decimal.Decimal) error {
	return r.RecordIntent(ctx, &payment.Intent{
		OrderCode: orderCode,
		Kind:      payment.KindOrder,
		BuyerID:   buyerID,
		Amount:    amount,
	})
}

// RecordMembershipIntent registers the intent for a membership charge.
func (r *PaymentRepository) RecordMembershipIntent(ctx context.Context, in *payment.Intent) error {
	in.Kind = payment.KindMembership
	return r.RecordIntent(ctx, in)
}

// ResolveIntent loads the intent registered for an order code.
func (r *PaymentRepository) ResolveIntent(ctx context.Context, orderCode string) (*payment.Intent, error) {
	var in payment.Intent
	err := r.store.db(ctx).QueryRow(ctx, getIntentSQL, orderCode).Scan(
		&in.OrderCode, &in.Kind, &in.BuyerID, &in.Amount, &in.Plan, &in.BillingKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrOrderNotFound
		}
		return nil, fmt.Errorf("resolving intent for %q: %w", orderCode, err)
	}
	return &in, nil
}
