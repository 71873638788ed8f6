package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Cancellable reports whether an order in the given status may still be
// cancelled. Shipped and delivered orders cannot.
func Cancellable(s Status) bool {
	return CanTransition(s, StatusCancelled)
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentCaptured      PaymentStatus = "CAPTURED"
	PaymentRefundPending PaymentStatus = "REFUND_PENDING"
	PaymentRefunded      PaymentStatus = "REFUNDED"
	PaymentRefundFailed  PaymentStatus = "REFUND_FAILED"
)
