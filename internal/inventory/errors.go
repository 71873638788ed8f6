package inventory

import "fmt"

// InsufficientStockError is terminal for the checkout attempt. By the time it
// is returned, every partial decrement has been unwound.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
