package orders

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the ledger surface the state machine needs. *Repo implements it;
// tests supply an in-memory fake.
type Store interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, orderNo string) (Order, error)
	GetByExternalID(ctx context.Context, externalID string) (Order, error)
	GetByRemoteOrderID(ctx context.Context, remoteOrderID string) (Order, error)
	MarkPaid(ctx context.Context, orderNo, remotePaymentID string) (bool, error)
	Cancel(ctx context.Context, orderNo, reason string, from Status) (bool, error)
	SetStatus(ctx context.Context, orderNo string, from, to Status) (bool, error)
	SetRemoteOrderID(ctx context.Context, orderNo, remoteOrderID string) error
	SetRefundOutcome(ctx context.Context, orderNo string, ps PaymentStatus, refundErr string) error
	UpdatePricing(ctx context.Context, orderNo string, version int64, p Pricing, couponCode string) (bool, error)
}

// Service owns the order lifecycle. It is the only component that mutates
// order status; everything else holds the order by reference.
type Service struct {
	Store Store
	Log   *zap.Logger
}

type CreateInput struct {
	OrderNo         string
	ExternalID      string
	Items           []LineItem
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	ShippingMinor   int64
	TaxMinor        int64
	ReservationID   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, &ValidationError{Field: "items", Reason: "at least one line item is required"}
	}
	var subtotal int64
	for _, it := range in.Items {
		if it.ProductID == "" {
			return Order{}, &ValidationError{Field: "items", Reason: "product id is required"}
		}
		if it.Qty <= 0 {
			return Order{}, &ValidationError{Field: "items", Reason: "qty must be positive for product " + it.ProductID}
		}
		if it.UnitPriceMinor < 0 {
			return Order{}, &ValidationError{Field: "items", Reason: "negative unit price for product " + it.ProductID}
		}
		subtotal += it.UnitPriceMinor * it.Qty
	}
	if in.ShippingAddress.Empty() {
		return Order{}, &ValidationError{Field: "shipping_address", Reason: "shipping address is required"}
	}
	if in.PaymentMethod == "" {
		return Order{}, &ValidationError{Field: "payment_method", Reason: "payment method is required"}
	}
	if in.ShippingMinor < 0 || in.TaxMinor < 0 {
		return Order{}, &ValidationError{Field: "pricing", Reason: "shipping and tax must not be negative"}
	}

	// Total is computed exactly once here; applyToOrder is the only later
	// mutation and it preserves the same identity.
	pricing := Pricing{
		SubtotalMinor: subtotal,
		ShippingMinor: in.ShippingMinor,
		TaxMinor:      in.TaxMinor,
		TotalMinor:    subtotal + in.ShippingMinor + in.TaxMinor,
	}

	now := time.Now().UTC()
	o := Order{
		OrderNo:         in.OrderNo,
		ExternalID:      in.ExternalID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   in.PaymentMethod,
		Items:           in.Items,
		Pricing:         pricing,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		ReservationID:   in.ReservationID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.OrderNo == "" {
		o.OrderNo = NewOrderNumber(now)
	}

	if err := s.Store.Insert(ctx, o); err != nil {
		return Order{}, err
	}
	s.Log.Info("order created",
		zap.String("order_no", o.OrderNo),
		zap.Int64("total_minor", o.Pricing.TotalMinor))
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderNo string) (Order, error) {
	return s.Store.Get(ctx, orderNo)
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (Order, error) {
	return s.Store.GetByExternalID(ctx, externalID)
}

func (s *Service) GetByRemoteOrderID(ctx context.Context, remoteOrderID string) (Order, error) {
	return s.Store.GetByRemoteOrderID(ctx, remoteOrderID)
}

func (s *Service) SetRemoteOrderID(ctx context.Context, orderNo, remoteOrderID string) error {
	return s.Store.SetRemoteOrderID(ctx, orderNo, remoteOrderID)
}

func (s *Service) SetRefundOutcome(ctx context.Context, orderNo string, ps PaymentStatus, refundErr string) error {
	return s.Store.SetRefundOutcome(ctx, orderNo, ps, refundErr)
}

func (s *Service) UpdatePricing(ctx context.Context, orderNo string, version int64, p Pricing, couponCode string) (bool, error) {
	return s.Store.UpdatePricing(ctx, orderNo, version, p, couponCode)
}

// MarkPaid transitions PENDING -> PAID. Replaying the same callback for an
// already paid order returns the order unchanged; any other conflict is an
// InvalidTransitionError.
func (s *Service) MarkPaid(ctx context.Context, orderNo, remotePaymentID string, verifiedAmount int64) (Order, error) {
	o, err := s.Store.Get(ctx, orderNo)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusPaid && o.RemotePaymentID == remotePaymentID {
		return o, nil
	}
	if o.Status != StatusPending {
		return Order{}, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: StatusPaid}
	}
	if verifiedAmount != o.Pricing.TotalMinor {
		return Order{}, &ValidationError{Field: "amount", Reason: "verified amount does not match order total"}
	}

	ok, err := s.Store.MarkPaid(ctx, orderNo, remotePaymentID)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		// Lost the swap; re-read to decide whether the race is benign.
		o, err = s.Store.Get(ctx, orderNo)
		if err != nil {
			return Order{}, err
		}
		if o.Status == StatusPaid && o.RemotePaymentID == remotePaymentID {
			return o, nil
		}
		return Order{}, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: StatusPaid}
	}

	o, err = s.Store.Get(ctx, orderNo)
	if err != nil {
		return Order{}, err
	}
	s.Log.Info("order paid",
		zap.String("order_no", orderNo),
		zap.String("remote_payment_id", remotePaymentID))
	return o, nil
}

// Cancel transitions to CANCELLED from any cancellable state. Shipped and
// delivered orders are refused.
func (s *Service) Cancel(ctx context.Context, orderNo, reason string) (Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		o, err := s.Store.Get(ctx, orderNo)
		if err != nil {
			return Order{}, err
		}
		if !Cancellable(o.Status) {
			return o, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: StatusCancelled}
		}
		ok, err := s.Store.Cancel(ctx, orderNo, reason, o.Status)
		if err != nil {
			return Order{}, err
		}
		if ok {
			o, err = s.Store.Get(ctx, orderNo)
			if err != nil {
				return Order{}, err
			}
			s.Log.Info("order cancelled",
				zap.String("order_no", orderNo),
				zap.String("reason", reason))
			return o, nil
		}
		// Status moved underneath us; re-read and retry while still cancellable.
	}
	o, err := s.Store.Get(ctx, orderNo)
	if err != nil {
		return Order{}, err
	}
	return o, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: StatusCancelled}
}

func (s *Service) MarkShipped(ctx context.Context, orderNo string) (Order, error) {
	return s.advance(ctx, orderNo, StatusPaid, StatusShipped)
}

func (s *Service) MarkDelivered(ctx context.Context, orderNo string) (Order, error) {
	return s.advance(ctx, orderNo, StatusShipped, StatusDelivered)
}

func (s *Service) advance(ctx context.Context, orderNo string, from, to Status) (Order, error) {
	o, err := s.Store.Get(ctx, orderNo)
	if err != nil {
		return Order{}, err
	}
	if o.Status == to {
		return o, nil
	}
	if o.Status != from {
		return Order{}, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: to}
	}
	ok, err := s.Store.SetStatus(ctx, orderNo, from, to)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		o, err = s.Store.Get(ctx, orderNo)
		if err != nil {
			return Order{}, err
		}
		if o.Status == to {
			return o, nil
		}
		return Order{}, &InvalidTransitionError{OrderNo: orderNo, From: o.Status, To: to}
	}
	return s.Store.Get(ctx, orderNo)
}
