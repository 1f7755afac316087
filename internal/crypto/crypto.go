// Package crypto provides the cryptographic primitive the orchestrator
// needs: HMAC-SHA256 signing and verification, used by internal/webhook
// to authenticate payment-processor event payloads.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSign generates an HMAC-SHA256 signature.
func HMACSign(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// HMACVerify verifies an HMAC-SHA256 signature.
func HMACVerify(key, data, signature []byte) bool {
	expectedSig := HMACSign(key, data)
	return hmac.Equal(signature, expectedSig)
}
