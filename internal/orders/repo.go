package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the ledger for orders. Status transitions go through conditional
// updates (compare-and-swap on the current status) so concurrent requests
// cannot produce lost updates; callers inspect the returned bool to learn
// whether their swap won.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `
	order_no, COALESCE(external_id, ''), status, payment_status, payment_method,
	subtotal_minor, shipping_minor, tax_minor, discount_minor, total_minor,
	shipping_address, billing_address,
	COALESCE(remote_order_id, ''), COALESCE(remote_payment_id, ''),
	COALESCE(reservation_id, ''), COALESCE(coupon_code, ''),
	COALESCE(cancel_reason, ''), COALESCE(refund_error, ''),
	version, created_at, updated_at, paid_at, cancelled_at`

func (r *Repo) Insert(ctx context.Context, o Order) error {
	shipAddr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billAddr, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(
			order_no, external_id, status, payment_status, payment_method,
			subtotal_minor, shipping_minor, tax_minor, discount_minor, total_minor,
			shipping_address, billing_address, reservation_id, coupon_code, version
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''), 1)
	`, o.OrderNo, o.ExternalID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.Pricing.SubtotalMinor, o.Pricing.ShippingMinor, o.Pricing.TaxMinor,
		o.Pricing.DiscountMinor, o.Pricing.TotalMinor,
		shipAddr, billAddr, o.ReservationID, o.CouponCode)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_no, product_id, name, unit_price_minor, qty)
			VALUES ($1, $2, $3, $4, $5)`,
			o.OrderNo, it.ProductID, it.Name, it.UnitPriceMinor, it.Qty)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, orderNo string) (Order, error) {
	return r.getBy(ctx, `order_no=$1`, orderNo)
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (Order, error) {
	return r.getBy(ctx, `external_id=$1`, externalID)
}

func (r *Repo) GetByRemoteOrderID(ctx context.Context, remoteOrderID string) (Order, error) {
	return r.getBy(ctx, `remote_order_id=$1`, remoteOrderID)
}

func (r *Repo) getBy(ctx context.Context, where string, arg any) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var shipAddr, billAddr []byte
	err := row.Scan(
		&o.OrderNo, &o.ExternalID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Pricing.SubtotalMinor, &o.Pricing.ShippingMinor, &o.Pricing.TaxMinor,
		&o.Pricing.DiscountMinor, &o.Pricing.TotalMinor,
		&shipAddr, &billAddr,
		&o.RemoteOrderID, &o.RemotePaymentID, &o.ReservationID, &o.CouponCode,
		&o.CancelReason, &o.RefundError,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.CancelledAt,
	)
	if err != nil {
		return Order{}, err
	}
	if len(shipAddr) > 0 {
		if err := json.Unmarshal(shipAddr, &o.ShippingAddress); err != nil {
			return Order{}, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	if len(billAddr) > 0 {
		if err := json.Unmarshal(billAddr, &o.BillingAddress); err != nil {
			return Order{}, fmt.Errorf("unmarshal billing address: %w", err)
		}
	}
	return o, nil
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, unit_price_minor, qty
		FROM order_items WHERE order_no=$1 ORDER BY product_id`, o.OrderNo)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.UnitPriceMinor, &it.Qty); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// MarkPaid flips PENDING -> PAID and captures the payment in one conditional
// update. Returns false when the order was not in PENDING anymore.
func (r *Repo) MarkPaid(ctx context.Context, orderNo, remotePaymentID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, remote_payment_id=$4,
		    paid_at=now(), updated_at=now(), version=version+1
		WHERE order_no=$1 AND status=$5`,
		orderNo, StatusPaid, PaymentCaptured, remotePaymentID, StatusPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Cancel flips the order to CANCELLED only when it is still in `from`.
func (r *Repo) Cancel(ctx context.Context, orderNo, reason string, from Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, cancel_reason=$3, cancelled_at=now(), updated_at=now(), version=version+1
		WHERE order_no=$1 AND status=$4`,
		orderNo, StatusCancelled, reason, from)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetStatus(ctx context.Context, orderNo string, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now(), version=version+1
		WHERE order_no=$1 AND status=$3`,
		orderNo, to, from)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetRemoteOrderID(ctx context.Context, orderNo, remoteOrderID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET remote_order_id=$2, updated_at=now() WHERE order_no=$1`,
		orderNo, remoteOrderID)
	return err
}

func (r *Repo) SetRefundOutcome(ctx context.Context, orderNo string, ps PaymentStatus, refundErr string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status=$2, refund_error=NULLIF($3, ''), updated_at=now()
		WHERE order_no=$1`,
		orderNo, ps, refundErr)
	return err
}

// UpdatePricing rewrites the pricing breakdown and coupon reference, guarded
// by the version read by the caller.
func (r *Repo) UpdatePricing(ctx context.Context, orderNo string, version int64, p Pricing, couponCode string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET subtotal_minor=$2, shipping_minor=$3, tax_minor=$4, discount_minor=$5,
		    total_minor=$6, coupon_code=NULLIF($7, ''), updated_at=now(), version=version+1
		WHERE order_no=$1 AND version=$8`,
		orderNo, p.SubtotalMinor, p.ShippingMinor, p.TaxMinor, p.DiscountMinor,
		p.TotalMinor, couponCode, version)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
