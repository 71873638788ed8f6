package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Callback signatures are HMAC-SHA256 over "remoteOrderID|remotePaymentID"
// with the shared webhook secret, hex encoded.
func sign(secret, remoteOrderID, remotePaymentID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(remoteOrderID + "|" + remotePaymentID))
	return mac.Sum(nil)
}

// Sign computes the callback signature. Exported for gateway simulators and
// tests; production signatures come from the gateway itself.
func Sign(secret, remoteOrderID, remotePaymentID string) string {
	return hex.EncodeToString(sign(secret, remoteOrderID, remotePaymentID))
}

// verifySignature compares in constant time and never reveals the expected
// value to the caller.
func verifySignature(secret, remoteOrderID, remotePaymentID, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sign(secret, remoteOrderID, remotePaymentID), provided)
}
