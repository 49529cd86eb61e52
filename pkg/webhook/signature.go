// Package webhook implements event-bus subscription, payload construction
// per WebhookType, and at-least-once delivery with bounded exponential
// backoff.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 signature of payload under
// secret. The pure crypto helpers live in their own file so they can be
// tested independently of the dispatcher.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the correct HMAC-SHA256 signature of
// payload under secret, using a constant-time comparison.
func Verify(secret, payload, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}
