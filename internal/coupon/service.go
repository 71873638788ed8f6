package coupon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/orders"
)

type Ledger interface {
	Get(ctx context.Context, code string) (Coupon, error)
	ClaimUse(ctx context.Context, code string) (bool, error)
	ReleaseUse(ctx context.Context, code string) error
}

type OrderLedger interface {
	Get(ctx context.Context, orderNo string) (orders.Order, error)
	UpdatePricing(ctx context.Context, orderNo string, version int64, p orders.Pricing, couponCode string) (bool, error)
}

type Service struct {
	Coupons Ledger
	Orders  OrderLedger
	Log     *zap.Logger
}

// Validate checks the coupon against a cart value and returns the discount it
// would grant. It never mutates the use count.
func (s *Service) Validate(ctx context.Context, code string, cartValueMinor int64) (int64, error) {
	c, err := s.Coupons.Get(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := s.check(c, cartValueMinor); err != nil {
		return 0, err
	}
	return c.Discount(cartValueMinor), nil
}

func (s *Service) check(c Coupon, cartValueMinor int64) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return ErrUsageLimit
	}
	if cartValueMinor < c.MinOrderMinor {
		return &MinimumNotMetError{Code: c.Code, MinOrderMinor: c.MinOrderMinor}
	}
	return nil
}

// ApplyToOrder recomputes the discount against the order's stored subtotal
// (never a client-supplied value), claims a usage slot atomically, and
// rewrites the order pricing. Concurrent redemptions near the cap cannot both
// succeed: the slot claim is the compare-and-swap.
func (s *Service) ApplyToOrder(ctx context.Context, code string, orderNo string) error {
	ord, err := s.Orders.Get(ctx, orderNo)
	if err != nil {
		return err
	}
	if ord.Status != orders.StatusPending {
		return &orders.InvalidTransitionError{OrderNo: orderNo, From: ord.Status, To: ord.Status}
	}
	if ord.CouponCode != "" {
		return fmt.Errorf("order %s already has coupon %s applied", orderNo, ord.CouponCode)
	}

	c, err := s.Coupons.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := s.check(c, ord.Pricing.SubtotalMinor); err != nil {
		return err
	}

	claimed, err := s.Coupons.ClaimUse(ctx, c.Code)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrUsageLimit
	}

	discount := c.Discount(ord.Pricing.SubtotalMinor)
	pricing := ord.Pricing
	pricing.DiscountMinor = discount
	pricing.TotalMinor = pricing.SubtotalMinor - discount + pricing.ShippingMinor + pricing.TaxMinor

	ok, err := s.Orders.UpdatePricing(ctx, orderNo, ord.Version, pricing, c.Code)
	if err == nil && !ok {
		err = fmt.Errorf("order %s changed while applying coupon", orderNo)
	}
	if err != nil {
		// Give the claimed slot back so a failed application never burns a use.
		if relErr := s.Coupons.ReleaseUse(ctx, c.Code); relErr != nil {
			s.Log.Error("release coupon use failed",
				zap.String("code", c.Code),
				zap.String("order_no", orderNo),
				zap.Error(relErr))
		}
		return err
	}

	s.Log.Info("coupon applied",
		zap.String("code", c.Code),
		zap.String("order_no", orderNo),
		zap.Int64("discount_minor", discount))
	return nil
}

// Release returns a use slot when a couponed, never-paid order is cancelled.
func (s *Service) Release(ctx context.Context, code string) error {
	return s.Coupons.ReleaseUse(ctx, code)
}
