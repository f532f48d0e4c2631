package serialization

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChecksumKey is the metadata key holding the hex SHA-256 of the data section.
const ChecksumKey = "data_sha256"

// ComputeChecksum computes the hex SHA-256 checksum of data.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// checksumOf hashes a sequence of buffers as if they were concatenated.
func checksumOf(chunks [][]byte) string {
	h := sha256.New()
	for _, c := range chunks {
		_, _ = h.Write(c) // hash.Hash never returns an error
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateChecksum compares the computed checksum against the stored one.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored string) error {
	if computed != stored {
		return &ValidationError{
			Err:     ErrChecksumMismatch,
			Details: "expected " + stored + ", got " + computed,
		}
	}
	return nil
}
