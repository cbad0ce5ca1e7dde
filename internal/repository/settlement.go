package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mercato/backoffice/internal/domain/settlement"
)

const (
	insertSettlementSQL = `INSERT INTO settlements (order_code, seller_id, product_id, gross, commission, net, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listSettlementsByOrderSQL = `SELECT id, order_code, seller_id, product_id, gross, commission, net, status, created_at, updated_at
		FROM settlements WHERE order_code = $1 ORDER BY id`

	listSettlementsByStatusSQL = `SELECT id, order_code, seller_id, product_id, gross, commission, net, status, created_at, updated_at
		FROM settlements WHERE status = $1 ORDER BY id`

	updateSettlementStatusSQL = `UPDATE settlements SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	cancelSettlementsByOrderSQL = `UPDATE settlements SET status = 'CANCELLED', updated_at = now()
		WHERE order_code = $1 AND status <> 'COMPLETED'`
)

var _ settlement.Repository = (*SettlementRepository)(nil)

// SettlementRepository implements settlement.Repository backed by PostgreSQL.
type SettlementRepository struct {
	store *Store
}

// NewSettlementRepository returns a SettlementRepository over the given store.
func NewSettlementRepository(store *Store) *SettlementRepository {
	return &SettlementRepository{store: store}
}

// CreateBatch inserts one row per line item of a just-paid order.
func (r *SettlementRepository) CreateBatch(ctx context.Context, rows []settlement.Settlement) error {
	db := r.store.db(ctx)
	for _, row := range rows {
		_, err := db.Exec(ctx, insertSettlementSQL,
			row.OrderCode, row.SellerID, row.ProductID,
			row.Gross, row.Commission, row.Net, row.Status,
		)
		if err != nil {
			return fmt.Errorf("creating settlement for order %q seller %d: %w", row.OrderCode, row.SellerID, err)
		}
	}
	return nil
}

// ListByOrder returns every settlement row of one order.
func (r *SettlementRepository) ListByOrder(ctx context.Context, orderCode string) ([]settlement.Settlement, error) {
	rows, err := r.store.db(ctx).Query(ctx, listSettlementsByOrderSQL, orderCode)
	if err != nil {
		return nil, fmt.Errorf("listing settlements for %q: %w", orderCode, err)
	}
	return pgx.CollectRows(rows, scanSettlement)
}

// ListByStatus returns every settlement row in the given status.
func (r *SettlementRepository) ListByStatus(ctx context.Context, status settlement.Status) ([]settlement.Settlement, error) {
	rows, err := r.store.db(ctx).Query(ctx, listSettlementsByStatusSQL, status)
	if err != nil {
		return nil, fmt.Errorf("listing %s settlements: %w", status, err)
	}
	return pgx.CollectRows(rows, scanSettlement)
}

// UpdateStatus applies a conditional status change on one settlement row.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, id int64, from, to settlement.Status) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateSettlementStatusSQL, id, from, to)
	if err != nil {
		return fmt.Errorf("updating settlement %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return settlement.ErrAlreadyFinalized
	}
	return nil
}

// CancelByOrder cancels every not-yet-completed settlement of an order.
func (r *SettlementRepository) CancelByOrder(ctx context.Context, orderCode string) error {
	_, err := r.store.db(ctx).Exec(ctx, cancelSettlementsByOrderSQL, orderCode)
	if err != nil {
		return fmt.Errorf("cancelling settlements for %q: %w", orderCode, err)
	}
	return nil
}

func scanSettlement(row pgx.CollectableRow) (settlement.Settlement, error) {
	var s settlement.Settlement
	err := row.Scan(&s.ID, &s.OrderCode, &s.SellerID, &s.ProductID,
		&s.Gross, &s.Commission, &s.Net, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
