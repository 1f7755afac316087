package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, body []byte, secret string, ts time.Time) string {
	t.Helper()
	signedString := strconv.FormatInt(ts.Unix(), 10) + "." + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedString))
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"type":"checkout.session.completed"}`)
	header := sign(t, body, "secret", time.Now())
	require.NoError(t, VerifySignature(body, header, "secret", 0))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"type":"checkout.session.completed"}`)
	header := sign(t, body, "secret", time.Now())
	assert.ErrorIs(t, VerifySignature(body, header, "wrong", 0), ErrInvalidSignature)
}

func TestVerifySignature_StaleTimestampRejected(t *testing.T) {
	body := []byte(`{"type":"checkout.session.completed"}`)
	header := sign(t, body, "secret", time.Now().Add(-time.Hour))
	assert.ErrorIs(t, VerifySignature(body, header, "secret", DefaultTolerance), ErrInvalidSignature)
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	assert.ErrorIs(t, VerifySignature([]byte("{}"), "garbage", "secret", 0), ErrInvalidSignature)
}
