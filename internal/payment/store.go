package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Payment is the verification record, keyed by the gateway payment id. A
// partial unique index guarantees at most one signature-verified payment per
// order.
type Payment struct {
	ID                string
	OrderNo           string
	AmountMinor       int64
	GatewayStatus     string
	SignatureVerified bool
	VerifiedAt        *time.Time
}

var ErrPaymentNotFound = errors.New("payment not found")

type Store struct{ DB *pgxpool.Pool }

func (s *Store) Get(ctx context.Context, paymentID string) (Payment, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, order_no, amount_minor, gateway_status, signature_verified, verified_at
		FROM payments WHERE id=$1`, paymentID)

	var p Payment
	if err := row.Scan(&p.ID, &p.OrderNo, &p.AmountMinor, &p.GatewayStatus, &p.SignatureVerified, &p.VerifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// RecordVerified inserts the verified payment. Replays of the same callback
// hit the primary key and insert nothing; the partial unique index rejects a
// second verified payment for the same order.
func (s *Store) RecordVerified(ctx context.Context, p Payment) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payments(id, order_no, amount_minor, gateway_status, signature_verified, verified_at)
		VALUES ($1, $2, $3, $4, true, now())
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OrderNo, p.AmountMinor, p.GatewayStatus)
	return err
}
