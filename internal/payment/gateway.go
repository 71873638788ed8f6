package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// Gateway wraps the third-party payment processor's HTTP API. Every call
// carries a bounded timeout; intent creation is idempotent on the order
// number so retries never create duplicate remote intents.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
	log    *zap.Logger
}

func NewGateway(cfg GatewayConfig, log *zap.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type RemoteOrderRef struct {
	RemoteOrderID string `json:"id"`
}

type RemotePaymentStatus struct {
	Status      string `json:"status"`
	Method      string `json:"method"`
	AmountMinor int64  `json:"amount"`
}

type RefundRef struct {
	RefundID string `json:"id"`
	Status   string `json:"status"`
}

func (g *Gateway) CreateIntent(ctx context.Context, orderNo string, amountMinor int64, customer Customer) (RemoteOrderRef, error) {
	body := map[string]any{
		"reference": orderNo,
		"amount":    amountMinor,
		"currency":  "INR",
		"customer":  customer,
	}
	var ref RemoteOrderRef
	if err := g.post(ctx, "/v1/intents", orderNo, body, &ref); err != nil {
		return RemoteOrderRef{}, &GatewayUnavailableError{Op: "create intent", Err: err}
	}
	g.log.Info("remote intent created",
		zap.String("order_no", orderNo),
		zap.String("remote_order_id", ref.RemoteOrderID))
	return ref, nil
}

// VerifySignature validates a callback in constant time. Failed verification
// is logged with correlation ids only.
func (g *Gateway) VerifySignature(remoteOrderID, remotePaymentID, signature string) bool {
	if verifySignature(g.cfg.WebhookSecret, remoteOrderID, remotePaymentID, signature) {
		return true
	}
	g.log.Warn("callback signature mismatch",
		zap.String("remote_order_id", remoteOrderID),
		zap.String("remote_payment_id", remotePaymentID))
	return false
}

// FetchStatus is enrichment only; callers must not let a gateway outage block
// a payment whose signature already verified.
func (g *Gateway) FetchStatus(ctx context.Context, remotePaymentID string) (RemotePaymentStatus, error) {
	var st RemotePaymentStatus
	if err := g.get(ctx, "/v1/payments/"+remotePaymentID, &st); err != nil {
		return RemotePaymentStatus{}, &GatewayUnavailableError{Op: "fetch status", Err: err}
	}
	return st, nil
}

func (g *Gateway) Refund(ctx context.Context, remotePaymentID string, amountMinor int64) (RefundRef, error) {
	body := map[string]any{"amount": amountMinor}
	var ref RefundRef
	if err := g.post(ctx, "/v1/payments/"+remotePaymentID+"/refunds", remotePaymentID, body, &ref); err != nil {
		return RefundRef{}, &GatewayUnavailableError{Op: "refund", Err: err}
	}
	g.log.Info("refund issued",
		zap.String("remote_payment_id", remotePaymentID),
		zap.String("refund_id", ref.RefundID))
	return ref, nil
}

func (g *Gateway) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	return g.do(req, out)
}

func (g *Gateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	return g.do(req, out)
}

func (g *Gateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
