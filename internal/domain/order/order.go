package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a buyer's purchase transaction header. The total is fixed at
// creation time; the only post-creation mutation paths are the status
// transitions defined in status.go.
type Order struct {
	ID             int64
	Code           string
	BuyerID        int64
	SellerID       int64 // optional at header level; 0 when the order spans sellers
	TotalPrice     decimal.Decimal
	CouponDiscount decimal.Decimal
	Status         Status
	Details        []OrderDetail
	Delivery       DeliverySnapshot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderDetail is one purchased (product, quantity) line with its own
// seller-scoped delivery sub-status. SellerID is duplicated from the product
// at order time so payout routing survives later catalog changes.
type OrderDetail struct {
	ID             int64
	OrderCode      string
	ProductID      int64
	SellerID       int64
	Quantity       int
	UnitPrice      decimal.Decimal
	Status         Status
	Carrier        string
	TrackingNumber string
}

// LineTotal returns unit price times quantity for this line.
func (d OrderDetail) LineTotal() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// DeliverySnapshot is the buyer-entered address captured at order time.
// Sellers read it but never modify it.
type DeliverySnapshot struct {
	Recipient     string
	Phone         string
	Address       string
	AddressDetail string
	PostalCode    string
}

// Repository defines persistence operations for orders. Status-changing
// methods perform conditional updates so that concurrent transition attempts
// on the same row cannot both win; a lost update surfaces as ErrStaleState.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByCode(ctx context.Context, code string) (*Order, error)
	UpdateStatus(ctx context.Context, code string, from, to Status) error
	UpdateDetailStatus(ctx context.Context, code string, sellerID, productID int64, from, to Status) error
	SetShippingInfo(ctx context.Context, code string, sellerID, productID int64, carrier, trackingNumber string) error
	ListCodesUnpaidBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
