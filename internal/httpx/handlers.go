package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/cancel"
	"github.com/ecomcore/orderflow/internal/checkout"
	"github.com/ecomcore/orderflow/internal/inventory"
	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
	"github.com/ecomcore/orderflow/internal/redisx"
)

type CheckoutService interface {
	Checkout(ctx context.Context, in checkout.Input) (checkout.Result, error)
}

type VerifyService interface {
	VerifyCallback(ctx context.Context, cb payment.Callback) (orders.Order, error)
}

type CancelService interface {
	Cancel(ctx context.Context, orderNo, reason string) (cancel.Result, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderNo string) (orders.Order, error)
}

type StuckLister interface {
	ListStuck(ctx context.Context) ([]inventory.Reservation, error)
}

type OrdersHandler struct {
	Checkout     CheckoutService
	Verifier     VerifyService
	Canceller    CancelService
	Orders       OrderReader
	Reservations StuckLister
	Redis        *redis.Client
	Log          *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/payments/verify", h.verifyPayment)
	r.Post("/orders/cancel", h.cancelOrder)
	r.Get("/orders/{orderNo}", h.getOrder)
	r.Get("/internal/reservations/stuck", h.listStuckReservations)
}

type createOrderReq struct {
	ExternalID      string             `json:"external_id"`
	Items           []orders.LineItem  `json:"items"`
	ShippingAddress orders.Address     `json:"shipping_address"`
	BillingAddress  orders.Address     `json:"billing_address"`
	PaymentMethod   string             `json:"payment_method"`
	ShippingMinor   int64              `json:"shipping_minor"`
	TaxMinor        int64              `json:"tax_minor"`
	CouponCode      string             `json:"coupon_code"`
	Customer        payment.Customer   `json:"customer"`
}

type createOrderResp struct {
	OrderNo       string         `json:"order_no"`
	Status        orders.Status  `json:"status"`
	Pricing       orders.Pricing `json:"pricing"`
	RemoteOrderID string         `json:"remote_order_id"`
	Idempotent    bool           `json:"idempotent"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancelFn := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancelFn()

	res, err := h.Checkout.Checkout(ctx, checkout.Input{
		ExternalID:      req.ExternalID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMinor:   req.ShippingMinor,
		TaxMinor:        req.TaxMinor,
		CouponCode:      req.CouponCode,
		Customer:        req.Customer,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, res.Order)
	if req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, res.Order.OrderNo, redisx.TTLIdempotency).Err()
	}

	writeJSON(w, http.StatusCreated, createOrderResp{
		OrderNo:       res.Order.OrderNo,
		Status:        res.Order.Status,
		Pricing:       res.Order.Pricing,
		RemoteOrderID: res.RemoteOrderID,
		Idempotent:    res.Idempotent,
	})
}

func (h *OrdersHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var cb payment.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancelFn := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancelFn()

	ord, err := h.Verifier.VerifyCallback(ctx, cb)
	if err != nil {
		// The precise cause is already logged with correlation ids; the
		// response stays generic so verification internals never leak.
		h.Log.Warn("payment verification rejected",
			zap.String("remote_order_id", cb.RemoteOrderID),
			zap.String("remote_payment_id", cb.RemotePaymentID),
			zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "verification failed"})
		return
	}

	h.cacheStatus(ctx, ord)
	writeJSON(w, http.StatusOK, map[string]any{
		"order_no":       ord.OrderNo,
		"status":         ord.Status,
		"payment_status": ord.PaymentStatus,
	})
}

type cancelOrderReq struct {
	OrderNo string `json:"order_no"`
	Reason  string `json:"reason"`
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_no is required"})
		return
	}

	ctx, cancelFn := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancelFn()

	res, err := h.Canceller.Cancel(ctx, req.OrderNo, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, res.Order)
	writeJSON(w, http.StatusOK, map[string]any{
		"order_no":       res.Order.OrderNo,
		"status":         res.Order.Status,
		"payment_status": res.Order.PaymentStatus,
		"refund":         res.Refund,
		"refund_error":   res.RefundError,
		"restock":        res.Restock,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "orderNo")
	if orderNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order number"})
		return
	}

	ctx, cancelFn := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancelFn()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderNo)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	ord, err := h.Orders.Get(ctx, orderNo)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, ord)
	writeJSON(w, http.StatusOK, statusBody(ord))
}

func (h *OrdersHandler) listStuckReservations(w http.ResponseWriter, r *http.Request) {
	ctx, cancelFn := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancelFn()

	stuck, err := h.Reservations.ListStuck(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	type item struct {
		ReservationID string    `json:"reservation_id"`
		OrderNo       string    `json:"order_no"`
		CreatedAt     time.Time `json:"created_at"`
	}
	out := make([]item, 0, len(stuck))
	for _, s := range stuck {
		out = append(out, item{ReservationID: s.ID, OrderNo: s.OrderNo, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stuck": out})
}

func statusBody(o orders.Order) map[string]any {
	return map[string]any{
		"order_no":       o.OrderNo,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"total_minor":    o.Pricing.TotalMinor,
	}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.OrderNo)
	b, err := json.Marshal(statusBody(o))
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
