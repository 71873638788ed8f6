package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/orders"
)

type OrderLedger interface {
	GetByRemoteOrderID(ctx context.Context, remoteOrderID string) (orders.Order, error)
	MarkPaid(ctx context.Context, orderNo, remotePaymentID string, verifiedAmount int64) (orders.Order, error)
}

type PaymentLedger interface {
	Get(ctx context.Context, paymentID string) (Payment, error)
	RecordVerified(ctx context.Context, p Payment) error
}

type GatewayOps interface {
	VerifySignature(remoteOrderID, remotePaymentID, signature string) bool
	FetchStatus(ctx context.Context, remotePaymentID string) (RemotePaymentStatus, error)
}

type Notifier interface {
	OrderPaid(o orders.Order)
}

// Verifier drives the payment callback flow: signature check, amount check,
// payment record, order transition. Signature validity is the source of truth
// for "did the customer pay"; the remote status fetch only enriches the
// record and never gates the transition.
type Verifier struct {
	Orders   OrderLedger
	Payments PaymentLedger
	Gateway  GatewayOps
	Events   Notifier
	Log      *zap.Logger
}

type Callback struct {
	RemoteOrderID   string `json:"remote_order_id"`
	RemotePaymentID string `json:"remote_payment_id"`
	Signature       string `json:"signature"`
	AmountMinor     int64  `json:"amount_minor"`
}

func (v *Verifier) VerifyCallback(ctx context.Context, cb Callback) (orders.Order, error) {
	if !v.Gateway.VerifySignature(cb.RemoteOrderID, cb.RemotePaymentID, cb.Signature) {
		return orders.Order{}, ErrSignatureInvalid
	}

	ord, err := v.Orders.GetByRemoteOrderID(ctx, cb.RemoteOrderID)
	if err != nil {
		v.Log.Warn("callback for unknown remote order",
			zap.String("remote_order_id", cb.RemoteOrderID),
			zap.String("remote_payment_id", cb.RemotePaymentID))
		return orders.Order{}, fmt.Errorf("lookup order for callback: %w", err)
	}

	// Replay of an already verified callback: succeed without re-mutating.
	if existing, err := v.Payments.Get(ctx, cb.RemotePaymentID); err == nil {
		if existing.SignatureVerified && existing.OrderNo == ord.OrderNo {
			return v.Orders.MarkPaid(ctx, ord.OrderNo, cb.RemotePaymentID, existing.AmountMinor)
		}
	}

	amount := cb.AmountMinor
	gatewayStatus := "captured"
	if st, err := v.Gateway.FetchStatus(ctx, cb.RemotePaymentID); err != nil {
		v.Log.Warn("remote status fetch failed, honoring signature alone",
			zap.String("order_no", ord.OrderNo),
			zap.String("remote_payment_id", cb.RemotePaymentID),
			zap.Error(err))
	} else {
		gatewayStatus = st.Status
		if st.AmountMinor != 0 {
			amount = st.AmountMinor
		}
	}

	if amount != ord.Pricing.TotalMinor {
		v.Log.Warn("payment amount mismatch",
			zap.String("order_no", ord.OrderNo),
			zap.String("remote_order_id", cb.RemoteOrderID),
			zap.String("remote_payment_id", cb.RemotePaymentID),
			zap.Int64("amount_minor", amount),
			zap.Int64("order_total_minor", ord.Pricing.TotalMinor))
		return orders.Order{}, &AmountMismatchError{
			OrderNo:   ord.OrderNo,
			GotMinor:  amount,
			WantMinor: ord.Pricing.TotalMinor,
		}
	}

	if err := v.Payments.RecordVerified(ctx, Payment{
		ID:            cb.RemotePaymentID,
		OrderNo:       ord.OrderNo,
		AmountMinor:   amount,
		GatewayStatus: gatewayStatus,
	}); err != nil {
		return orders.Order{}, fmt.Errorf("record payment: %w", err)
	}

	paid, err := v.Orders.MarkPaid(ctx, ord.OrderNo, cb.RemotePaymentID, amount)
	if err != nil {
		return orders.Order{}, err
	}

	if v.Events != nil {
		v.Events.OrderPaid(paid)
	}
	return paid, nil
}
