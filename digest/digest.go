// Package digest provides the hash primitives for the sigil lineage protocol:
// SHA-256 over raw bytes, hashing of structured values through the canonical
// serializer, and CID derivation for archived segment files.
package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"kaipulse.dev/sigil/canonical"
)

// ZeroRoot is the defined root of an empty Merkle leaf set. It is a sentinel,
// not an error.
const ZeroRoot = "0000000000000000000000000000000000000000000000000000000000000000"

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexString is SHA256Hex over the UTF-8 bytes of s.
func SHA256HexString(s string) string {
	return SHA256Hex([]byte(s))
}

// HashAny hashes any JSON-compatible value via its canonical serialization.
//
// This is the only way structured values enter a hash anywhere in the
// protocol; hashing non-canonical bytes of a structured value is a bug.
func HashAny(v any) (string, error) {
	b, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// IsHex reports whether s is a well-formed lowercase hex string of n bytes.
func IsHex(s string, n int) bool {
	if len(s) != 2*n {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
