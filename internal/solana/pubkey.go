package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of an ed25519 public key.
const PubkeyLength = 32

// ParsePubkey decodes a base58 address and checks its length.
func ParsePubkey(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", address, err)
	}
	if len(decoded) != PubkeyLength {
		return nil, fmt.Errorf("address %q: got %d bytes, want %d", address, len(decoded), PubkeyLength)
	}
	return decoded, nil
}

// IsValidPubkey reports whether address is a well-formed base58 public key.
func IsValidPubkey(address string) bool {
	_, err := ParsePubkey(address)
	return err == nil
}

// IsOnCurve reports whether address is a point on the ed25519 curve.
// Wallets are on the curve; program derived addresses (pool authorities,
// vaults) are not.
func IsOnCurve(address string) bool {
	key, err := ParsePubkey(address)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(key)
	return err == nil
}
