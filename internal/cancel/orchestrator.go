package cancel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
)

type OrderMachine interface {
	Cancel(ctx context.Context, orderNo, reason string) (orders.Order, error)
	SetRefundOutcome(ctx context.Context, orderNo string, ps orders.PaymentStatus, refundErr string) error
}

type Restorer interface {
	Restore(ctx context.Context, reservationID string) error
}

type RefundIssuer interface {
	Refund(ctx context.Context, remotePaymentID string, amountMinor int64) (payment.RefundRef, error)
}

type CouponReleaser interface {
	Release(ctx context.Context, code string) error
}

type Notifier interface {
	OrderCancelled(o orders.Order, refundStatus, restockStatus string)
}

type StepStatus string

const (
	StepSkipped StepStatus = "skipped"
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Result reports the primary transition plus per-step sub-statuses, so the
// caller can tell "cancelled; refund processing" apart from "cancelled;
// refund failed" without treating either as an overall failure.
type Result struct {
	Order       orders.Order
	Refund      StepStatus
	RefundError string
	Restock     StepStatus
}

// Orchestrator drives the compensating sequence: status flip, refund,
// stock restore. The status flip is the gate; the other two steps fail
// independently and never roll it back.
type Orchestrator struct {
	Orders       OrderMachine
	Reservations Restorer
	Gateway      RefundIssuer
	Coupons      CouponReleaser
	Events       Notifier
	Log          *zap.Logger
}

func (c *Orchestrator) Cancel(ctx context.Context, orderNo, reason string) (Result, error) {
	ord, err := c.Orders.Cancel(ctx, orderNo, reason)
	if err != nil {
		var ite *orders.InvalidTransitionError
		if errors.As(err, &ite) && ite.From == orders.StatusCancelled {
			// Already cancelled: benign, re-run the compensation steps so a
			// stuck refund or restock gets another attempt.
		} else {
			return Result{}, err
		}
	}

	res := Result{Order: ord, Refund: StepSkipped, Restock: StepSkipped}
	res.Refund, res.RefundError = c.refund(ctx, &ord)
	res.Restock = c.restock(ctx, ord)

	if ord.CouponCode != "" && ord.PaymentStatus == orders.PaymentPending && c.Coupons != nil {
		if err := c.Coupons.Release(ctx, ord.CouponCode); err != nil {
			c.Log.Warn("coupon release failed",
				zap.String("order_no", ord.OrderNo),
				zap.String("code", ord.CouponCode),
				zap.Error(err))
		}
	}

	res.Order = ord
	if c.Events != nil {
		c.Events.OrderCancelled(ord, string(res.Refund), string(res.Restock))
	}
	return res, nil
}

func (c *Orchestrator) refund(ctx context.Context, ord *orders.Order) (StepStatus, string) {
	switch ord.PaymentStatus {
	case orders.PaymentCaptured, orders.PaymentRefundFailed:
		// fall through to issue (or retry) the refund
	case orders.PaymentRefundPending, orders.PaymentRefunded:
		return StepPending, ""
	default:
		return StepSkipped, ""
	}
	if ord.RemotePaymentID == "" {
		return StepSkipped, ""
	}

	_, err := c.Gateway.Refund(ctx, ord.RemotePaymentID, ord.Pricing.TotalMinor)
	if err != nil {
		c.Log.Error("refund failed, order stays cancelled",
			zap.String("order_no", ord.OrderNo),
			zap.String("remote_payment_id", ord.RemotePaymentID),
			zap.Error(err))
		if setErr := c.Orders.SetRefundOutcome(ctx, ord.OrderNo, orders.PaymentRefundFailed, err.Error()); setErr != nil {
			c.Log.Error("record refund failure failed",
				zap.String("order_no", ord.OrderNo), zap.Error(setErr))
		}
		ord.PaymentStatus = orders.PaymentRefundFailed
		ord.RefundError = err.Error()
		return StepFailed, err.Error()
	}

	if err := c.Orders.SetRefundOutcome(ctx, ord.OrderNo, orders.PaymentRefundPending, ""); err != nil {
		c.Log.Error("record refund outcome failed",
			zap.String("order_no", ord.OrderNo), zap.Error(err))
	}
	ord.PaymentStatus = orders.PaymentRefundPending
	ord.RefundError = ""
	return StepPending, ""
}

func (c *Orchestrator) restock(ctx context.Context, ord orders.Order) StepStatus {
	if ord.ReservationID == "" {
		return StepSkipped
	}
	if err := c.Reservations.Restore(ctx, ord.ReservationID); err != nil {
		// A stuck active reservation on a cancelled order stays queryable for
		// the reconciliation sweep.
		c.Log.Error("stock restore failed",
			zap.String("order_no", ord.OrderNo),
			zap.String("reservation_id", ord.ReservationID),
			zap.Error(err))
		return StepFailed
	}
	return StepDone
}
