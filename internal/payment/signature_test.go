package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureRoundtrip(t *testing.T) {
	sig := Sign("whsec_test", "rzp_order_1", "rzp_pay_1")
	assert.True(t, verifySignature("whsec_test", "rzp_order_1", "rzp_pay_1", sig))
}

func TestSignatureRejections(t *testing.T) {
	sig := Sign("whsec_test", "rzp_order_1", "rzp_pay_1")

	cases := []struct {
		name                                   string
		secret, remoteOrderID, remotePaymentID string
		signature                              string
	}{
		{"tampered payment id", "whsec_test", "rzp_order_1", "rzp_pay_2", sig},
		{"tampered order id", "whsec_test", "rzp_order_2", "rzp_pay_1", sig},
		{"wrong secret", "whsec_other", "rzp_order_1", "rzp_pay_1", sig},
		{"garbage signature", "whsec_test", "rzp_order_1", "rzp_pay_1", "not-hex!"},
		{"empty signature", "whsec_test", "rzp_order_1", "rzp_pay_1", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.False(t, verifySignature(c.secret, c.remoteOrderID, c.remotePaymentID, c.signature))
		})
	}
}

// The delimiter keeps ("ab","c") and ("a","bc") from signing identically.
func TestSignatureFieldBoundary(t *testing.T) {
	assert.NotEqual(t,
		Sign("whsec_test", "ab", "c"),
		Sign("whsec_test", "a", "bc"))
}
