package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/mercato/backoffice/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (code, buyer_id, seller_id, total_price, coupon_discount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`

	insertOrderDetailSQL = `INSERT INTO order_details (order_code, product_id, seller_id, quantity, unit_price, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	insertDeliverySQL = `INSERT INTO order_deliveries (order_code, recipient, phone, address, address_detail, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, code, buyer_id, seller_id, total_price, coupon_discount, status, created_at, updated_at
		FROM orders WHERE code = $1 FOR UPDATE`

	getDeliverySQL = `SELECT recipient, phone, address, address_detail, postal_code
		FROM order_deliveries WHERE order_code = $1`

	listDetailsSQL = `SELECT id, order_code, product_id, seller_id, quantity, unit_price, status, carrier, tracking_number
		FROM order_details WHERE order_code = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE code = $1 AND status = $2`

	updateDetailStatusSQL = `UPDATE order_details SET status = $5
		WHERE order_code = $1 AND seller_id = $2 AND product_id = $3 AND status = $4`

	setShippingInfoSQL = `UPDATE order_details SET carrier = $4, tracking_number = $5
		WHERE order_code = $1 AND seller_id = $2 AND product_id = $3`

	listUnpaidCodesSQL = `SELECT code FROM orders
		WHERE status = 'BEFORE_PAID' AND created_at < $1 ORDER BY created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository returns an OrderRepository over the given store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Create persists an order together with its line items and delivery
// snapshot. Must run inside a transaction when combined with other writes.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	db := r.store.db(ctx)

	err := db.QueryRow(ctx, insertOrderSQL,
		o.Code, o.BuyerID, o.SellerID, o.TotalPrice, o.CouponDiscount, o.Status, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Code, err)
	}

	for i := range o.Details {
		d := &o.Details[i]
		err := db.QueryRow(ctx, insertOrderDetailSQL,
			o.Code, d.ProductID, d.SellerID, d.Quantity, d.UnitPrice, d.Status,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("creating order detail for product %d: %w", d.ProductID, err)
		}
	}

	_, err = db.Exec(ctx, insertDeliverySQL,
		o.Code, o.Delivery.Recipient, o.Delivery.Phone,
		o.Delivery.Address, o.Delivery.AddressDetail, o.Delivery.PostalCode,
	)
	if err != nil {
		return fmt.Errorf("creating delivery snapshot for %q: %w", o.Code, err)
	}
	return nil
}

// GetByCode loads an order with its line items and delivery snapshot. Inside
// a transaction the header row is locked, serializing concurrent transition
// attempts on the same order.
func (r *OrderRepository) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	db := r.store.db(ctx)

	var o order.Order
	err := db.QueryRow(ctx, getOrderSQL, code).Scan(
		&o.ID, &o.Code, &o.BuyerID, &o.SellerID,
		&o.TotalPrice, &o.CouponDiscount, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", code, err)
	}

	err = db.QueryRow(ctx, getDeliverySQL, code).Scan(
		&o.Delivery.Recipient, &o.Delivery.Phone,
		&o.Delivery.Address, &o.Delivery.AddressDetail, &o.Delivery.PostalCode,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting delivery snapshot for %q: %w", code, err)
	}

	rows, err := db.Query(ctx, listDetailsSQL, code)
	if err != nil {
		return nil, fmt.Errorf("listing details for %q: %w", code, err)
	}
	o.Details, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.OrderDetail, error) {
		var d order.OrderDetail
		err := row.Scan(&d.ID, &d.OrderCode, &d.ProductID, &d.SellerID,
			&d.Quantity, &d.UnitPrice, &d.Status, &d.Carrier, &d.TrackingNumber)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("collecting details for %q: %w", code, err)
	}
	return &o, nil
}

// UpdateStatus applies a conditional status change. Zero affected rows means
// another writer moved the order first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, code string, from, to order.Status) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateOrderStatusSQL, code, from, to)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleState
	}
	return nil
}

// UpdateDetailStatus applies a conditional status change on one line item.
func (r *OrderRepository) UpdateDetailStatus(ctx context.Context, code string, sellerID, productID int64, from, to order.Status) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateDetailStatusSQL, code, sellerID, productID, from, to)
	if err != nil {
		return fmt.Errorf("updating detail status for %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleState
	}
	return nil
}

// SetShippingInfo records carrier and tracking number on one line item.
func (r *OrderRepository) SetShippingInfo(ctx context.Context, code string, sellerID, productID int64, carrier, trackingNumber string) error {
	tag, err := r.store.db(ctx).Exec(ctx, setShippingInfoSQL, code, sellerID, productID, carrier, trackingNumber)
	if err != nil {
		return fmt.Errorf("setting shipping info for %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListCodesUnpaidBefore returns the codes of orders still BEFORE_PAID that
// were created before the cutoff.
func (r *OrderRepository) ListCodesUnpaidBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.store.db(ctx).Query(ctx, listUnpaidCodesSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing unpaid orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}
