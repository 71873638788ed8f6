package checkout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/inventory"
	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
)

type OrderMachine interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.Order, error)
	Get(ctx context.Context, orderNo string) (orders.Order, error)
	GetByExternalID(ctx context.Context, externalID string) (orders.Order, error)
	Cancel(ctx context.Context, orderNo, reason string) (orders.Order, error)
	SetRemoteOrderID(ctx context.Context, orderNo, remoteOrderID string) error
}

type Reserver interface {
	Reserve(ctx context.Context, orderNo string, items []inventory.ReservedItem) (inventory.Reservation, error)
	Restore(ctx context.Context, reservationID string) error
}

type CouponApplier interface {
	Validate(ctx context.Context, code string, cartValueMinor int64) (int64, error)
	ApplyToOrder(ctx context.Context, code, orderNo string) error
}

type IntentCreator interface {
	CreateIntent(ctx context.Context, orderNo string, amountMinor int64, customer payment.Customer) (payment.RemoteOrderRef, error)
}

type Notifier interface {
	OrderCreated(o orders.Order)
}

// Service runs the checkout sequence: reserve stock, create the order in
// PENDING, apply the coupon, create the remote payment intent. Any failure
// after the reservation unwinds it within the same request.
type Service struct {
	Orders       OrderMachine
	Reservations Reserver
	Coupons      CouponApplier
	Gateway      IntentCreator
	Events       Notifier
	Log          *zap.Logger
}

type Input struct {
	ExternalID      string
	Items           []orders.LineItem
	ShippingAddress orders.Address
	BillingAddress  orders.Address
	PaymentMethod   string
	ShippingMinor   int64
	TaxMinor        int64
	CouponCode      string
	Customer        payment.Customer
}

type Result struct {
	Order         orders.Order
	RemoteOrderID string
	Idempotent    bool
}

func (s *Service) Checkout(ctx context.Context, in Input) (Result, error) {
	// Idempotency on the caller-supplied external id: a retried checkout
	// returns the original order instead of reserving twice.
	if in.ExternalID != "" {
		if existing, err := s.Orders.GetByExternalID(ctx, in.ExternalID); err == nil {
			return Result{Order: existing, RemoteOrderID: existing.RemoteOrderID, Idempotent: true}, nil
		} else if !errors.Is(err, orders.ErrNotFound) {
			return Result{}, err
		}
	}

	// Pre-validate the coupon against the cart so an exhausted code fails the
	// request before any stock is held.
	if in.CouponCode != "" {
		var subtotal int64
		for _, it := range in.Items {
			subtotal += it.UnitPriceMinor * it.Qty
		}
		if _, err := s.Coupons.Validate(ctx, in.CouponCode, subtotal); err != nil {
			return Result{}, err
		}
	}

	orderNo := orders.NewOrderNumber(time.Now())

	reserved := make([]inventory.ReservedItem, 0, len(in.Items))
	for _, it := range in.Items {
		reserved = append(reserved, inventory.ReservedItem{ProductID: it.ProductID, Qty: it.Qty})
	}
	res, err := s.Reservations.Reserve(ctx, orderNo, reserved)
	if err != nil {
		return Result{}, err
	}

	ord, err := s.Orders.Create(ctx, orders.CreateInput{
		OrderNo:         orderNo,
		ExternalID:      in.ExternalID,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		PaymentMethod:   in.PaymentMethod,
		ShippingMinor:   in.ShippingMinor,
		TaxMinor:        in.TaxMinor,
		ReservationID:   res.ID,
	})
	if err != nil {
		s.release(ctx, res.ID, orderNo)
		return Result{}, err
	}

	if in.CouponCode != "" {
		if err := s.Coupons.ApplyToOrder(ctx, in.CouponCode, ord.OrderNo); err != nil {
			s.abort(ctx, ord.OrderNo, res.ID, "coupon application failed")
			return Result{}, err
		}
		ord, err = s.Orders.Get(ctx, ord.OrderNo)
		if err != nil {
			return Result{}, err
		}
	}

	ref, err := s.Gateway.CreateIntent(ctx, ord.OrderNo, ord.Pricing.TotalMinor, in.Customer)
	if err != nil {
		s.abort(ctx, ord.OrderNo, res.ID, "payment intent creation failed")
		return Result{}, err
	}
	if err := s.Orders.SetRemoteOrderID(ctx, ord.OrderNo, ref.RemoteOrderID); err != nil {
		return Result{}, err
	}
	ord.RemoteOrderID = ref.RemoteOrderID

	if s.Events != nil {
		s.Events.OrderCreated(ord)
	}
	return Result{Order: ord, RemoteOrderID: ref.RemoteOrderID}, nil
}

func (s *Service) release(ctx context.Context, reservationID, orderNo string) {
	if err := s.Reservations.Restore(ctx, reservationID); err != nil {
		s.Log.Error("unwind reservation failed",
			zap.String("order_no", orderNo),
			zap.String("reservation_id", reservationID),
			zap.Error(err))
	}
}

func (s *Service) abort(ctx context.Context, orderNo, reservationID, reason string) {
	if _, err := s.Orders.Cancel(ctx, orderNo, reason); err != nil {
		s.Log.Error("abort order failed",
			zap.String("order_no", orderNo),
			zap.Error(err))
	}
	s.release(ctx, reservationID, orderNo)
}
