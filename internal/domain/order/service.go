package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/domain/payment"
	"github.com/mercato/backoffice/internal/event"
)

// Sentinel errors for order operations.
var (
	ErrNotFound   = fmt.Errorf("order not found")
	ErrEmptyItems = fmt.Errorf("items required")
	ErrStaleState = fmt.Errorf("order was modified concurrently")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ProductInfo is the read-only product directory projection the order flow
// needs: payout routing and the price snapshot.
type ProductInfo struct {
	ID       int64
	SellerID int64
	Price    decimal.Decimal
}

// Directory is the external product directory. The core only reads from it.
type Directory interface {
	ProductsByIDs(ctx context.Context, ids []int64) ([]ProductInfo, error)
}

// IntentRecorder registers the payment intent for a freshly created order so
// that a later gateway confirmation can be routed without inspecting the
// order code format.
type IntentRecorder interface {
	RecordOrderIntent(ctx context.Context, orderCode string, buyerID int64, amount decimal.Decimal) error
}

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	BuyerID        int64
	Items          []ItemRequest
	CouponDiscount decimal.Decimal
	Delivery       DeliverySnapshot
}

// ItemRequest is one requested line item.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// Service owns every order status mutation. Other components never write
// order state directly; they go through these entry points so all changes
// pass the transition tables.
type Service struct {
	orders     Repository
	directory  Directory
	intents    IntentRecorder
	tx         TxRunner
	dispatcher *event.Dispatcher
	now        func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(orders Repository, directory Directory, intents IntentRecorder, tx TxRunner, dispatcher *event.Dispatcher) *Service {
	return &Service{
		orders:     orders,
		directory:  directory,
		intents:    intents,
		tx:         tx,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Create validates the request, snapshots product prices and the delivery
// address, and persists the order at BEFORE_PAID together with its payment
// intent.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	products, err := s.directory.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lookup products")
	}
	byID := make(map[int64]ProductInfo, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := s.now()
	o := &Order{
		Code:           payment.NewCode("ORD", now),
		BuyerID:        req.BuyerID,
		CouponDiscount: req.CouponDiscount,
		Status:         StatusBeforePaid,
		Delivery:       req.Delivery,
		CreatedAt:      now,
	}

	total := decimal.Zero
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, errors.Errorf("product %d not found", item.ProductID)
		}
		d := OrderDetail{
			OrderCode: o.Code,
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			Status:    StatusBeforePaid,
		}
		o.Details = append(o.Details, d)
		total = total.Add(d.LineTotal())
	}
	total = total.Sub(req.CouponDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.TotalPrice = total

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.intents.RecordOrderIntent(ctx, o.Code, o.BuyerID, o.TotalPrice); err != nil {
			return errors.Wrap(err, "record payment intent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaid transitions an order to PAID and opens every line item for seller
// action. Calling it on an order that is already PAID is a no-op.
func (s *Service) MarkPaid(ctx context.Context, code string) error {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	next, err := Transition(o.Status, StatusPaid)
	if err != nil {
		return err
	}
	if next == o.Status {
		return nil
	}
	if err := s.orders.UpdateStatus(ctx, code, o.Status, StatusPaid); err != nil {
		return err
	}
	for _, d := range o.Details {
		if err := s.orders.UpdateDetailStatus(ctx, code, d.SellerID, d.ProductID, StatusBeforePaid, StatusWaitCheck); err != nil {
			return errors.Wrap(err, "open line item")
		}
	}
	return nil
}

// Cancel cancels an order that has not yet entered fulfilment and notifies
// dependent aggregates. Only BEFORE_PAID and PAID orders are cancellable.
func (s *Service) Cancel(ctx context.Context, code string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		next, err := Transition(o.Status, StatusCancelled)
		if err != nil {
			return err
		}
		if next == o.Status {
			return nil
		}
		if err := s.orders.UpdateStatus(ctx, code, o.Status, StatusCancelled); err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, event.OrderCancelled{OrderCode: code})
	})
}

// RegisterShipping records carrier and tracking number on one line item. The
// information must be present before the line can move to IN_DELIVERY.
func (s *Service) RegisterShipping(ctx context.Context, code string, sellerID, productID int64, carrier, trackingNumber string) error {
	if carrier == "" || trackingNumber == "" {
		return ErrMissingShippingInfo
	}
	return s.orders.SetShippingInfo(ctx, code, sellerID, productID, carrier, trackingNumber)
}

// AdvanceDetail applies a seller-scoped transition on one line item, then
// lets the header catch up once every line item has reached the new stage.
// When a line item completes delivery its settlement becomes confirmable.
func (s *Service) AdvanceDetail(ctx context.Context, code string, sellerID, productID int64, next Status) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		idx := -1
		for i, d := range o.Details {
			if d.SellerID == sellerID && d.ProductID == productID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}

		updated, err := AdvanceDetail(o.Details[idx], next)
		if err != nil {
			return err
		}
		if updated.Status == o.Details[idx].Status {
			return nil
		}
		if err := s.orders.UpdateDetailStatus(ctx, code, sellerID, productID, o.Details[idx].Status, updated.Status); err != nil {
			return err
		}
		o.Details[idx] = updated

		if updated.Status == StatusDeliveryCompleted {
			ev := event.DeliveryCompleted{OrderCode: code, SellerID: sellerID, ProductID: productID}
			if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
				return err
			}
		}
		return s.syncHeader(ctx, o)
	})
}

// ConfirmPurchase records buyer confirmation for one line item, or for the
// whole order when sellerID and productID are zero. Confirmation finalises
// the matching settlements.
func (s *Service) ConfirmPurchase(ctx context.Context, code string, sellerID, productID int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		for i, d := range o.Details {
			if sellerID != 0 && (d.SellerID != sellerID || d.ProductID != productID) {
				continue
			}
			updated, err := AdvanceDetail(d, StatusPurchaseConfirmed)
			if err != nil {
				return err
			}
			if updated.Status == d.Status {
				continue
			}
			if err := s.orders.UpdateDetailStatus(ctx, code, d.SellerID, d.ProductID, d.Status, updated.Status); err != nil {
				return err
			}
			o.Details[i] = updated
		}
		ev := event.PurchaseConfirmed{OrderCode: code, SellerID: sellerID, ProductID: productID}
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			return err
		}
		return s.syncHeader(ctx, o)
	})
}

// syncHeader advances the header to the slowest stage its line items have
// all reached, one validated edge at a time.
func (s *Service) syncHeader(ctx context.Context, o *Order) error {
	target, ok := HeaderStage(o.Details)
	if !ok {
		return nil
	}
	steps, err := StepsTo(o.Status, target)
	if err != nil {
		return err
	}
	cur := o.Status
	for _, step := range steps {
		if err := s.orders.UpdateStatus(ctx, o.Code, cur, step); err != nil {
			return err
		}
		cur = step
	}
	o.Status = cur
	return nil
}
