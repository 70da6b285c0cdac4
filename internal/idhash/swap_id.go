package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSwapID computes a deterministic swap_id using SHA256.
// Formula: SHA256(tx_signature|mint)
// Returns hex-encoded hash (64 characters).
func ComputeSwapID(txSignature, mint string) string {
	data := fmt.Sprintf("%s|%s", txSignature, mint)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
