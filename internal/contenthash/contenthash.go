// Package contenthash derives cache keys from content.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex computes SHA-256 of data and returns it hex encoded.
func Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Hex over the exact bytes of s.
func String(s string) string {
	return Hex([]byte(s))
}
