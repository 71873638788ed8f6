package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Coupon codes are case-insensitive and stored uppercase.
type Coupon struct {
	Code          string
	Type          DiscountType
	Value         int64 // percent for PERCENTAGE, minor units for FIXED
	MinOrderMinor int64
	MaxUses       *int64 // nil = unlimited
	CurrentUses   int64
	ExpiresAt     *time.Time
	Active        bool
}

var (
	ErrNotFound   = errors.New("coupon not found")
	ErrInactive   = errors.New("coupon is not active")
	ErrExpired    = errors.New("coupon has expired")
	ErrUsageLimit = errors.New("coupon usage limit reached")
)

// MinimumNotMetError carries the threshold so the user sees an actionable
// message.
type MinimumNotMetError struct {
	Code          string
	MinOrderMinor int64
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum order value of %d", e.Code, e.MinOrderMinor)
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount computes the discount for the given subtotal, capped at the
// subtotal itself so a coupon can never push the total negative.
func (c Coupon) Discount(subtotalMinor int64) int64 {
	var d int64
	switch c.Type {
	case DiscountPercentage:
		d = subtotalMinor * c.Value / 100
	case DiscountFixed:
		d = c.Value
	}
	if d > subtotalMinor {
		d = subtotalMinor
	}
	if d < 0 {
		d = 0
	}
	return d
}
