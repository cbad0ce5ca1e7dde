package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mercato/backoffice/internal/directory"
	"github.com/mercato/backoffice/internal/domain/membership"
	"github.com/mercato/backoffice/internal/domain/order"
	"github.com/mercato/backoffice/internal/domain/payment"
	"github.com/mercato/backoffice/internal/domain/settlement"
	"github.com/mercato/backoffice/internal/event"
	"github.com/mercato/backoffice/internal/gateway"
	"github.com/mercato/backoffice/internal/repository"
)

// Services is the wired object graph shared by the API server and the
// scheduler binary.
type Services struct {
	Store       *repository.Store
	Orders      *order.Service
	Confirm     *payment.ConfirmService
	Reconciler  *payment.Reconciler
	Settlements *settlement.Engine
	Payouts     *settlement.PayoutRunner
	Memberships *membership.Service
	Billing     *membership.BillingRunner
	Termination *membership.TerminationRunner
	Gateway     *gateway.Client
}

// BuildServices wires repositories, domain services, and the event
// dispatcher. The dispatcher subscriptions are the single place where the
// order lifecycle is coupled to settlements, so no caller has to remember to
// update both aggregates.
func BuildServices(pool *pgxpool.Pool, cfg *Config) (*Services, error) {
	rate, err := cfg.CommissionRate()
	if err != nil {
		return nil, err
	}
	planPrices, err := planPrices(cfg)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(store)
	paymentRepo := repository.NewPaymentRepository(store)
	settlementRepo := repository.NewSettlementRepository(store)
	membershipRepo := repository.NewMembershipRepository(store)

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)
	catalog := directory.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	dispatcher := event.NewDispatcher()
	engine := settlement.NewEngine(settlementRepo, rate)

	orders := order.NewService(orderRepo, catalog, paymentRepo, store, dispatcher)
	members := membership.NewService(membershipRepo, paymentRepo, planPrices)
	confirm := payment.NewConfirmService(gw, paymentRepo, orders, members, store, dispatcher)
	reconciler := payment.NewReconciler(gw, confirm, orders, orderRepo, cfg.Reconcile.Grace)

	subscribe(dispatcher, orderRepo, engine)

	return &Services{
		Store:       store,
		Orders:      orders,
		Confirm:     confirm,
		Reconciler:  reconciler,
		Settlements: engine,
		Payouts:     settlement.NewPayoutRunner(settlementRepo, gw),
		Memberships: members,
		Billing:     membership.NewBillingRunner(membershipRepo, members, confirm),
		Termination: membership.NewTerminationRunner(membershipRepo),
		Gateway:     gw,
	}, nil
}

// subscribe couples the settlement lifecycle to the order lifecycle.
func subscribe(d *event.Dispatcher, orders *repository.OrderRepository, engine *settlement.Engine) {
	d.Subscribe(event.OrderPaid{}.Name(), func(ctx context.Context, ev event.Event) error {
		e := ev.(event.OrderPaid)
		o, err := orders.GetByCode(ctx, e.OrderCode)
		if err != nil {
			return err
		}
		return engine.CreateForOrder(ctx, o)
	})
	d.Subscribe(event.OrderCancelled{}.Name(), func(ctx context.Context, ev event.Event) error {
		return engine.CancelForOrder(ctx, ev.(event.OrderCancelled).OrderCode)
	})
	d.Subscribe(event.DeliveryCompleted{}.Name(), func(ctx context.Context, ev event.Event) error {
		e := ev.(event.DeliveryCompleted)
		return engine.MarkItemConfirmed(ctx, e.OrderCode, e.SellerID, e.ProductID)
	})
	d.Subscribe(event.PurchaseConfirmed{}.Name(), func(ctx context.Context, ev event.Event) error {
		e := ev.(event.PurchaseConfirmed)
		if e.SellerID == 0 {
			return engine.MarkConfirmed(ctx, e.OrderCode)
		}
		return engine.MarkItemConfirmed(ctx, e.OrderCode, e.SellerID, e.ProductID)
	})
}

func planPrices(cfg *Config) (map[membership.Plan]decimal.Decimal, error) {
	monthly, err := decimal.NewFromString(cfg.Membership.MonthlyPrice)
	if err != nil {
		return nil, err
	}
	yearly, err := decimal.NewFromString(cfg.Membership.YearlyPrice)
	if err != nil {
		return nil, err
	}
	return map[membership.Plan]decimal.Decimal{
		membership.PlanMonthly: monthly,
		membership.PlanYearly:  yearly,
	}, nil
}
