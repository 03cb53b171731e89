package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainKey is the domain prefix for key hashes.
// The version suffix enables future algorithm migration.
const DomainKey = "relpop/key/v1"

// DomainHeading is the domain prefix for table heading signatures.
const DomainHeading = "relpop/heading/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// KeyHash computes a stable identity for a key. The hash depends only on the
// attribute names and values, not on their order.
func KeyHash(k Key) (string, error) {
	canonical, err := MarshalCanonical(k.Object())
	if err != nil {
		return "", fmt.Errorf("KeyHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKey, canonical), nil
}

// MustKeyHash is like KeyHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustKeyHash(k Key) string {
	h, err := KeyHash(k)
	if err != nil {
		panic(err)
	}
	return h
}

// HeadingHash computes the identity of a table heading signature.
func HeadingHash(signature string) string {
	return hashWithDomain(DomainHeading, []byte(signature))
}
