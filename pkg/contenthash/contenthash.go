// Package contenthash computes fixed-length content fingerprints for raw
// log payloads. Stored records carry the digest instead of the payload.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Sum returns the SHA-256 digest of payload. An empty payload is valid
// and hashes deterministically like any other input.
func Sum(payload []byte) [Size]byte {
	return sha256.Sum256(payload)
}

// HexSum returns the digest of payload as a fixed-length lowercase hex string.
func HexSum(payload []byte) string {
	d := Sum(payload)
	return hex.EncodeToString(d[:])
}
