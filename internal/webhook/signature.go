package webhook

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/crypto"
)

// DefaultTolerance bounds how stale a signed event's timestamp may be
// before verification rejects it as a possible replay.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature is returned when a webhook's signature header does
// not verify against the configured shared secret.
var ErrInvalidSignature = fmt.Errorf("webhook: invalid signature")

// VerifySignature checks a payment processor's signed-event header, which
// takes the form "t=<unix-seconds>,v1=<hex-hmac-sha256>" over the string
// "<timestamp>.<payload>" keyed by secret — the same scheme Stripe and
// most processors that imitate it use. Verification is constant-time via
// crypto.HMACVerify (internal/crypto, grounded on the teacher's HMAC
// helpers for its own signed-event flows).
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var timestamp int64
	var signatureHex string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp, _ = strconv.ParseInt(kv[1], 10, 64)
		case "v1":
			signatureHex = kv[1]
		}
	}
	if timestamp == 0 || signatureHex == "" {
		return ErrInvalidSignature
	}

	age := time.Since(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return ErrInvalidSignature
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidSignature
	}

	signedString := strconv.FormatInt(timestamp, 10) + "." + string(payload)
	if !crypto.HMACVerify([]byte(secret), []byte(signedString), signature) {
		return ErrInvalidSignature
	}
	return nil
}
