package redisx

import "time"

const (
	// Available stock per product: stock:{product_id} -> int
	KeyStock = "stock:%s"

	// Restore idempotency marker: restock:{reservation_id}:{product_id}
	KeyRestoreMarker = "restock:%s:%s"

	// Idempotency for checkout: idem:checkout:{external_id} -> order_no
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache of order status: order_status:{order_no} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup for event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency   = 24 * time.Hour
	TTLStatusCache   = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
	TTLRestoreMarker = 48 * time.Hour
)
