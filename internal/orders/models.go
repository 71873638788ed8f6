package orders

import "time"

// All monetary amounts are integral minor units (e.g. paise, cents).

type LineItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Qty            int64  `json:"qty"`
}

type Pricing struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

// Consistent reports whether total == subtotal - discount + shipping + tax.
func (p Pricing) Consistent() bool {
	return p.TotalMinor == p.SubtotalMinor-p.DiscountMinor+p.ShippingMinor+p.TaxMinor
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Empty() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == ""
}

type Order struct {
	OrderNo    string
	ExternalID string
	Status     Status
	// PaymentStatus is an independent axis from Status: a cancelled order may
	// still be waiting on its refund.
	PaymentStatus PaymentStatus
	PaymentMethod string

	Items   []LineItem
	Pricing Pricing

	ShippingAddress Address
	BillingAddress  Address

	RemoteOrderID   string
	RemotePaymentID string
	ReservationID   string
	CouponCode      string

	CancelReason string
	RefundError  string

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time
}
