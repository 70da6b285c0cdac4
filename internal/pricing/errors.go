package pricing

import (
	"errors"

	"solana-swap-pricer/internal/price"
	"solana-swap-pricer/internal/storage"
	"solana-swap-pricer/internal/swapdiff"
)

var (
	// ErrTransactionNotFound is returned when the node does not know the signature.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionFailed is returned for transactions executed with an error.
	ErrTransactionFailed = errors.New("transaction failed")
)

// RejectReason maps a pricing error to a short metrics label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, ErrTransactionFailed):
		return "failed"
	case errors.Is(err, swapdiff.ErrNonReferenceSwap):
		return "non_reference"
	case errors.Is(err, swapdiff.ErrLegCount):
		return "leg_count"
	case errors.Is(err, swapdiff.ErrZeroTradedAmount):
		return "zero_amount"
	case errors.Is(err, swapdiff.ErrInvalidReferencePrice):
		return "invalid_price"
	case errors.Is(err, price.ErrPriceUnavailable):
		return "price_unavailable"
	case errors.Is(err, storage.ErrDuplicateKey):
		return "duplicate"
	default:
		return "error"
	}
}

// IsSkip reports whether err only means the transaction is not a priceable swap
// or was already priced. Ingestion counts these and moves on quietly.
func IsSkip(err error) bool {
	switch RejectReason(err) {
	case "failed", "non_reference", "leg_count", "zero_amount", "duplicate":
		return true
	}
	return false
}
