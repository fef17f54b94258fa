package services

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// Fingerprint computes the content fingerprint of a document: a truncated
// hex SHA-256 over the full byte content. Identical bytes always produce
// identical fingerprints; the truncation keeps cache keys short.
func Fingerprint(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
