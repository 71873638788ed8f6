package payment

import (
	"errors"
	"fmt"
)

// ErrSignatureInvalid is surfaced to callers as a generic verification
// failure; the precise cause stays in the logs.
var ErrSignatureInvalid = errors.New("signature verification failed")

// AmountMismatchError means the verified payment amount does not equal the
// order total in minor units. The order must stay unpaid regardless of
// signature validity.
type AmountMismatchError struct {
	OrderNo   string
	GotMinor  int64
	WantMinor int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: payment amount %d does not match order total %d",
		e.OrderNo, e.GotMinor, e.WantMinor)
}

// GatewayUnavailableError marks a transient gateway failure, retryable with
// the same idempotency key.
type GatewayUnavailableError struct {
	Op  string
	Err error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("payment gateway unavailable during %s: %v", e.Op, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }
