package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "navguard/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest computes the content digest of a snapshot. Equal snapshots
// always produce equal digests; the journal stores digests instead of full
// form contents.
func SnapshotDigest(obj IRObject) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustSnapshotDigest is like SnapshotDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSnapshotDigest(obj IRObject) string {
	d, err := SnapshotDigest(obj)
	if err != nil {
		panic(err)
	}
	return d
}
