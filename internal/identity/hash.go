// Package identity derives deterministic lookup digests from sensitive
// identifiers. The digest is independent of the field encryption key, so
// equality search and uniqueness survive key rotation.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes an email address for hashing and comparison.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Hash returns the hex SHA-256 digest of the normalized email.
func Hash(email string) string {
	sum := sha256.Sum256([]byte(Normalize(email)))
	return hex.EncodeToString(sum[:])
}
