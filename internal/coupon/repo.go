package coupon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, code string) (Coupon, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT code, discount_type, discount_value, min_order_minor,
		       max_uses, current_uses, expires_at, active
		FROM coupons WHERE code=$1`, NormalizeCode(code))

	var c Coupon
	err := row.Scan(&c.Code, &c.Type, &c.Value, &c.MinOrderMinor,
		&c.MaxUses, &c.CurrentUses, &c.ExpiresAt, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, err
	}
	return c, nil
}

// ClaimUse atomically takes one usage slot. The conditional update is the
// compare-and-swap: when two redemptions race for the last slot, exactly one
// sees RowsAffected == 1.
func (r *Repo) ClaimUse(ctx context.Context, code string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE coupons SET current_uses = current_uses + 1
		WHERE code=$1 AND active AND (max_uses IS NULL OR current_uses < max_uses)`,
		NormalizeCode(code))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseUse gives a slot back, floored at zero. Used when applying the
// discount to the order fails after the slot was claimed, and when a
// couponed unpaid order is cancelled.
func (r *Repo) ReleaseUse(ctx context.Context, code string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE coupons SET current_uses = current_uses - 1
		WHERE code=$1 AND current_uses > 0`,
		NormalizeCode(code))
	return err
}
