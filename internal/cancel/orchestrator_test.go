package cancel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
)

type fakeOrderMachine struct {
	order    orders.Order
	outcomes []orders.PaymentStatus
}

func (f *fakeOrderMachine) Cancel(_ context.Context, orderNo, reason string) (orders.Order, error) {
	if f.order.OrderNo != orderNo {
		return orders.Order{}, orders.ErrNotFound
	}
	if f.order.Status == orders.StatusCancelled {
		return f.order, &orders.InvalidTransitionError{OrderNo: orderNo, From: orders.StatusCancelled, To: orders.StatusCancelled}
	}
	if !orders.Cancellable(f.order.Status) {
		return f.order, &orders.InvalidTransitionError{OrderNo: orderNo, From: f.order.Status, To: orders.StatusCancelled}
	}
	f.order.Status = orders.StatusCancelled
	f.order.CancelReason = reason
	return f.order, nil
}

func (f *fakeOrderMachine) SetRefundOutcome(_ context.Context, _ string, ps orders.PaymentStatus, refundErr string) error {
	f.order.PaymentStatus = ps
	f.order.RefundError = refundErr
	f.outcomes = append(f.outcomes, ps)
	return nil
}

type fakeRestorer struct {
	restored []string
	err      error
}

func (f *fakeRestorer) Restore(_ context.Context, reservationID string) error {
	if f.err != nil {
		return f.err
	}
	f.restored = append(f.restored, reservationID)
	return nil
}

type fakeRefundIssuer struct {
	refunds int
	err     error
}

func (f *fakeRefundIssuer) Refund(_ context.Context, _ string, _ int64) (payment.RefundRef, error) {
	if f.err != nil {
		return payment.RefundRef{}, f.err
	}
	f.refunds++
	return payment.RefundRef{RefundID: "rfnd_1", Status: "processed"}, nil
}

type fakeReleaser struct{ released []string }

func (f *fakeReleaser) Release(_ context.Context, code string) error {
	f.released = append(f.released, code)
	return nil
}

type cancelRecorder struct {
	events []string
}

func (r *cancelRecorder) OrderCancelled(o orders.Order, refundStatus, restockStatus string) {
	r.events = append(r.events, o.OrderNo+"/"+refundStatus+"/"+restockStatus)
}

func paidOrder() orders.Order {
	return orders.Order{
		OrderNo:         "ORD-1",
		Status:          orders.StatusPaid,
		PaymentStatus:   orders.PaymentCaptured,
		RemotePaymentID: "rzp_pay_1",
		ReservationID:   "rsv_1",
		Pricing:         orders.Pricing{SubtotalMinor: 52500, TotalMinor: 52500},
	}
}

type fixture struct {
	machine  *fakeOrderMachine
	restorer *fakeRestorer
	issuer   *fakeRefundIssuer
	releaser *fakeReleaser
	events   *cancelRecorder
	orch     *Orchestrator
}

func newFixture(o orders.Order) *fixture {
	f := &fixture{
		machine:  &fakeOrderMachine{order: o},
		restorer: &fakeRestorer{},
		issuer:   &fakeRefundIssuer{},
		releaser: &fakeReleaser{},
		events:   &cancelRecorder{},
	}
	f.orch = &Orchestrator{
		Orders:       f.machine,
		Reservations: f.restorer,
		Gateway:      f.issuer,
		Coupons:      f.releaser,
		Events:       f.events,
		Log:          zap.NewNop(),
	}
	return f
}

func TestCancelPaidOrder(t *testing.T) {
	f := newFixture(paidOrder())

	res, err := f.orch.Cancel(context.Background(), "ORD-1", "customer request")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusCancelled, res.Order.Status)
	assert.Equal(t, StepPending, res.Refund)
	assert.Empty(t, res.RefundError)
	assert.Equal(t, StepDone, res.Restock)

	assert.Equal(t, 1, f.issuer.refunds)
	assert.Equal(t, orders.PaymentRefundPending, res.Order.PaymentStatus)
	assert.Equal(t, []string{"rsv_1"}, f.restorer.restored)
	assert.Empty(t, f.releaser.released, "captured payments never release the coupon")
	assert.Equal(t, []string{"ORD-1/pending/done"}, f.events.events)
}

func TestCancelPendingOrderSkipsRefund(t *testing.T) {
	o := paidOrder()
	o.Status = orders.StatusPending
	o.PaymentStatus = orders.PaymentPending
	o.RemotePaymentID = ""
	o.CouponCode = "SAVE10"
	f := newFixture(o)

	res, err := f.orch.Cancel(context.Background(), "ORD-1", "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, StepSkipped, res.Refund)
	assert.Equal(t, StepDone, res.Restock)
	assert.Zero(t, f.issuer.refunds)
	assert.Equal(t, []string{"SAVE10"}, f.releaser.released)
}

func TestCancelShippedOrderRefused(t *testing.T) {
	o := paidOrder()
	o.Status = orders.StatusShipped
	f := newFixture(o)

	_, err := f.orch.Cancel(context.Background(), "ORD-1", "too late")
	var ite *orders.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, orders.StatusShipped, ite.From)

	assert.Zero(t, f.issuer.refunds)
	assert.Empty(t, f.restorer.restored)
	assert.Empty(t, f.events.events)
}

func TestRefundFailureDoesNotBlockCancellation(t *testing.T) {
	f := newFixture(paidOrder())
	f.issuer.err = errors.New("gateway timeout")

	res, err := f.orch.Cancel(context.Background(), "ORD-1", "customer request")
	require.NoError(t, err, "refund failure is a sub-status, not an overall failure")

	assert.Equal(t, orders.StatusCancelled, res.Order.Status)
	assert.Equal(t, StepFailed, res.Refund)
	assert.Contains(t, res.RefundError, "gateway timeout")
	assert.Equal(t, orders.PaymentRefundFailed, res.Order.PaymentStatus)

	// Stock still restored independently.
	assert.Equal(t, StepDone, res.Restock)
	assert.Equal(t, []string{"rsv_1"}, f.restorer.restored)
}

func TestRestockFailureIsolated(t *testing.T) {
	f := newFixture(paidOrder())
	f.restorer.err = errors.New("redis down")

	res, err := f.orch.Cancel(context.Background(), "ORD-1", "customer request")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusCancelled, res.Order.Status)
	assert.Equal(t, StepPending, res.Refund, "refund proceeds despite restock failure")
	assert.Equal(t, StepFailed, res.Restock)
}

func TestCancelAlreadyCancelledRetriesFailedSteps(t *testing.T) {
	o := paidOrder()
	o.Status = orders.StatusCancelled
	o.PaymentStatus = orders.PaymentRefundFailed
	o.RefundError = "gateway timeout"
	f := newFixture(o)

	res, err := f.orch.Cancel(context.Background(), "ORD-1", "retry")
	require.NoError(t, err, "second cancel is benign")

	assert.Equal(t, 1, f.issuer.refunds, "failed refund gets another attempt")
	assert.Equal(t, StepPending, res.Refund)
	assert.Equal(t, orders.PaymentRefundPending, res.Order.PaymentStatus)
	assert.Equal(t, []string{"rsv_1"}, f.restorer.restored)
}
