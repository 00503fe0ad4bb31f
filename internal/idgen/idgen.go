// Package idgen generates random identifiers for records the service creates.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix followed by 24 random hex characters,
// e.g. "alrt_3f9c0e...". Panics if the system entropy source fails.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex returns numBytes random bytes hex-encoded.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
