package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(GatewayConfig{
		BaseURL:       srv.URL,
		APIKey:        "key_test",
		WebhookSecret: "whsec_test",
		Timeout:       2 * time.Second,
	}, zap.NewNop())
}

func TestCreateIntent(t *testing.T) {
	var gotReq *http.Request
	var gotBody map[string]any
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rzp_order_1"}`))
	})

	ref, err := g.CreateIntent(context.Background(), "ORD-1", 52500, Customer{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "rzp_order_1", ref.RemoteOrderID)

	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "/v1/intents", gotReq.URL.Path)
	assert.Equal(t, "Bearer key_test", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "ORD-1", gotReq.Header.Get("Idempotency-Key"), "retries must reuse the order number")
	assert.Equal(t, "ORD-1", gotBody["reference"])
	assert.EqualValues(t, 52500, gotBody["amount"])
	assert.Equal(t, "INR", gotBody["currency"])
}

func TestCreateIntentGatewayDown(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.CreateIntent(context.Background(), "ORD-1", 52500, Customer{})
	var gerr *GatewayUnavailableError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "create intent", gerr.Op)
}

func TestFetchStatus(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/rzp_pay_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"captured","method":"card","amount":52500}`))
	})

	st, err := g.FetchStatus(context.Background(), "rzp_pay_1")
	require.NoError(t, err)
	assert.Equal(t, "captured", st.Status)
	assert.Equal(t, "card", st.Method)
	assert.EqualValues(t, 52500, st.AmountMinor)
}

func TestRefund(t *testing.T) {
	var gotPath string
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed"}`))
	})

	ref, err := g.Refund(context.Background(), "rzp_pay_1", 52500)
	require.NoError(t, err)
	assert.Equal(t, "/v1/payments/rzp_pay_1/refunds", gotPath)
	assert.Equal(t, "rfnd_1", ref.RefundID)
	assert.Equal(t, "processed", ref.Status)
}
