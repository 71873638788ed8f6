package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/orders"
)

type fakeLedger struct {
	mu      sync.Mutex
	coupons map[string]*Coupon
}

func newFakeLedger(cs ...Coupon) *fakeLedger {
	l := &fakeLedger{coupons: map[string]*Coupon{}}
	for i := range cs {
		c := cs[i]
		l.coupons[c.Code] = &c
	}
	return l
}

func (l *fakeLedger) Get(_ context.Context, code string) (Coupon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.coupons[NormalizeCode(code)]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return *c, nil
}

func (l *fakeLedger) ClaimUse(_ context.Context, code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.coupons[code]
	if !ok || !c.Active {
		return false, nil
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	return true, nil
}

func (l *fakeLedger) ReleaseUse(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.coupons[code]; ok && c.CurrentUses > 0 {
		c.CurrentUses--
	}
	return nil
}

type fakeOrderLedger struct {
	mu   sync.Mutex
	byNo map[string]*orders.Order
	fail bool // force UpdatePricing to lose its version check
}

func newFakeOrderLedger(os ...orders.Order) *fakeOrderLedger {
	l := &fakeOrderLedger{byNo: map[string]*orders.Order{}}
	for i := range os {
		o := os[i]
		l.byNo[o.OrderNo] = &o
	}
	return l
}

func (l *fakeOrderLedger) Get(_ context.Context, orderNo string) (orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byNo[orderNo]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return *o, nil
}

func (l *fakeOrderLedger) UpdatePricing(_ context.Context, orderNo string, version int64, p orders.Pricing, couponCode string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byNo[orderNo]
	if !ok || o.Version != version || l.fail {
		return false, nil
	}
	o.Pricing = p
	o.CouponCode = couponCode
	o.Version++
	return true, nil
}

func ptr[T any](v T) *T { return &v }

func activeCoupon() Coupon {
	return Coupon{
		Code:          "SAVE10",
		Type:          DiscountPercentage,
		Value:         10,
		MinOrderMinor: 10000,
		Active:        true,
	}
}

func pendingOrder(subtotalMinor int64) orders.Order {
	return orders.Order{
		OrderNo: "ORD-1",
		Status:  orders.StatusPending,
		Pricing: orders.Pricing{
			SubtotalMinor: subtotalMinor,
			ShippingMinor: 1000,
			TaxMinor:      500,
			TotalMinor:    subtotalMinor + 1500,
		},
	}
}

func newCouponService(l *fakeLedger, ol *fakeOrderLedger) *Service {
	return &Service{Coupons: l, Orders: ol, Log: zap.NewNop()}
}

func TestValidate(t *testing.T) {
	t.Run("grants discount without burning a use", func(t *testing.T) {
		ledger := newFakeLedger(activeCoupon())
		svc := newCouponService(ledger, newFakeOrderLedger())

		d, err := svc.Validate(context.Background(), "save10", 50000)
		require.NoError(t, err)
		assert.EqualValues(t, 5000, d)

		c, err := ledger.Get(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.Zero(t, c.CurrentUses)
	})

	t.Run("error taxonomy", func(t *testing.T) {
		expired := activeCoupon()
		expired.Code = "EXPIRED"
		expired.ExpiresAt = ptr(time.Now().Add(-time.Hour))

		inactive := activeCoupon()
		inactive.Code = "OFF"
		inactive.Active = false

		capped := activeCoupon()
		capped.Code = "CAPPED"
		capped.MaxUses = ptr(int64(5))
		capped.CurrentUses = 5

		svc := newCouponService(newFakeLedger(activeCoupon(), expired, inactive, capped), newFakeOrderLedger())

		cases := []struct {
			name, code string
			cartMinor  int64
			want       error
		}{
			{"unknown code", "NOPE", 50000, ErrNotFound},
			{"inactive", "OFF", 50000, ErrInactive},
			{"expired", "EXPIRED", 50000, ErrExpired},
			{"usage limit reached", "CAPPED", 50000, ErrUsageLimit},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := svc.Validate(context.Background(), c.code, c.cartMinor)
				assert.ErrorIs(t, err, c.want)
			})
		}

		_, err := svc.Validate(context.Background(), "SAVE10", 5000)
		var minErr *MinimumNotMetError
		require.ErrorAs(t, err, &minErr)
		assert.EqualValues(t, 10000, minErr.MinOrderMinor)
	})
}

func TestApplyToOrder(t *testing.T) {
	t.Run("rewrites pricing from the stored subtotal", func(t *testing.T) {
		ledger := newFakeLedger(activeCoupon())
		ordersLedger := newFakeOrderLedger(pendingOrder(50000))
		svc := newCouponService(ledger, ordersLedger)

		require.NoError(t, svc.ApplyToOrder(context.Background(), "SAVE10", "ORD-1"))

		o, err := ordersLedger.Get(context.Background(), "ORD-1")
		require.NoError(t, err)
		assert.EqualValues(t, 5000, o.Pricing.DiscountMinor)
		assert.EqualValues(t, 46500, o.Pricing.TotalMinor)
		assert.Equal(t, "SAVE10", o.CouponCode)
		assert.True(t, o.Pricing.Consistent())

		c, err := ledger.Get(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.EqualValues(t, 1, c.CurrentUses)
	})

	t.Run("refuses non-pending orders", func(t *testing.T) {
		paid := pendingOrder(50000)
		paid.Status = orders.StatusPaid
		svc := newCouponService(newFakeLedger(activeCoupon()), newFakeOrderLedger(paid))

		err := svc.ApplyToOrder(context.Background(), "SAVE10", "ORD-1")
		var ite *orders.InvalidTransitionError
		require.ErrorAs(t, err, &ite)
	})

	t.Run("refuses a second coupon on the same order", func(t *testing.T) {
		o := pendingOrder(50000)
		o.CouponCode = "OTHER"
		svc := newCouponService(newFakeLedger(activeCoupon()), newFakeOrderLedger(o))

		err := svc.ApplyToOrder(context.Background(), "SAVE10", "ORD-1")
		require.Error(t, err)
	})

	t.Run("releases the claimed slot when the pricing write loses", func(t *testing.T) {
		ledger := newFakeLedger(activeCoupon())
		ordersLedger := newFakeOrderLedger(pendingOrder(50000))
		ordersLedger.fail = true
		svc := newCouponService(ledger, ordersLedger)

		err := svc.ApplyToOrder(context.Background(), "SAVE10", "ORD-1")
		require.Error(t, err)

		c, err := ledger.Get(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.Zero(t, c.CurrentUses, "failed application must not burn a use")
	})

	t.Run("one slot left, two orders race, exactly one wins", func(t *testing.T) {
		capped := activeCoupon()
		capped.MaxUses = ptr(int64(1))
		ledger := newFakeLedger(capped)

		o1 := pendingOrder(50000)
		o2 := pendingOrder(50000)
		o2.OrderNo = "ORD-2"
		svc := newCouponService(ledger, newFakeOrderLedger(o1, o2))

		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for _, no := range []string{"ORD-1", "ORD-2"} {
			wg.Add(1)
			go func(orderNo string) {
				defer wg.Done()
				errs <- svc.ApplyToOrder(context.Background(), "SAVE10", orderNo)
			}(no)
		}
		wg.Wait()
		close(errs)

		var won, lost int
		for err := range errs {
			if err == nil {
				won++
			} else {
				require.ErrorIs(t, err, ErrUsageLimit)
				lost++
			}
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, 1, lost)

		c, err := ledger.Get(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.EqualValues(t, 1, c.CurrentUses)
	})
}

func TestDiscountCaps(t *testing.T) {
	fixed := Coupon{Code: "FLAT", Type: DiscountFixed, Value: 60000, Active: true}
	assert.EqualValues(t, 50000, fixed.Discount(50000), "discount never exceeds the subtotal")

	pct := Coupon{Code: "PCT", Type: DiscountPercentage, Value: 10, Active: true}
	assert.EqualValues(t, 5000, pct.Discount(50000))
}
