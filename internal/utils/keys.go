package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewAPIKey returns a fresh merchant credential: "API_" followed by 40
// hex characters (20 random bytes).
func NewAPIKey() (string, error) { return prefixedKey("API_", 20) }

// NewDeviceKey returns a fresh device credential: "DEV_" followed by 32
// hex characters (16 random bytes). The device key doubles as the HMAC
// shared secret of the signed-request protocol.
func NewDeviceKey() (string, error) { return prefixedKey("DEV_", 16) }

// prefixedKey generates a hex-encoded string from n bytes of
// cryptographically secure random data with the given prefix. Keys are
// opaque: nothing is derived from them, they are only ever compared by
// unique-index lookup.
func prefixedKey(prefix string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(buf), nil
}
