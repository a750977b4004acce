package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the signature Binance expects on authenticated endpoints: an
// HMAC-SHA256 over the UTF-8 bytes of the canonical query string, encoded as
// a lowercase hex digest. The exchange recomputes the same digest server-side,
// so the output must match byte for byte.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
