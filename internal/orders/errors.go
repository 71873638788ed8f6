package orders

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("order not found")

// ValidationError rejects malformed checkout input. Never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned when a status change is not legal from
// the order's current state. Callers that lost a race should treat it as a
// benign no-op when From already equals their target state.
type InvalidTransitionError struct {
	OrderNo string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderNo, e.From, e.To)
}
