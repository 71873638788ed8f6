package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ecomcore/orderflow/internal/coupon"
	"github.com/ecomcore/orderflow/internal/inventory"
	"github.com/ecomcore/orderflow/internal/orders"
	"github.com/ecomcore/orderflow/internal/payment"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var (
		validation *orders.ValidationError
		transition *orders.InvalidTransitionError
		stock      *inventory.InsufficientStockError
		minimum    *coupon.MinimumNotMetError
		gateway    *payment.GatewayUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": stock.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": transition.Error()})
	case errors.As(err, &minimum):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": minimum.Error()})
	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimit):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &gateway):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "payment gateway unavailable, please retry"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
