// Package digest computes exact content digests for byte-for-byte duplicate detection.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Digest is a SHA-256 sum of raw content. Digests compare by equality only.
type Digest [Size]byte

// Sum computes the digest of data. Empty input is valid.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse decodes a hex digest as produced by String.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("decode digest: want %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}
