package swapdiff

import (
	"errors"
	"fmt"
	"math"

	"solana-swap-pricer/internal/domain"
)

// WSOLMint is the wrapped SOL mint, the reference asset every swap is priced against.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Resolution errors.
var (
	// ErrNonReferenceSwap is returned when neither leg, or both legs, are the reference asset.
	ErrNonReferenceSwap = errors.New("non-reference-asset swap")

	// ErrLegCount is returned when the swap does not have exactly two legs.
	ErrLegCount = errors.New("swap must have exactly two legs")

	// ErrZeroTradedAmount is returned when the traded leg did not move.
	ErrZeroTradedAmount = errors.New("degenerate swap: zero traded amount")

	// ErrInvalidReferencePrice is returned for a non-finite or non-positive reference price.
	ErrInvalidReferencePrice = errors.New("invalid reference price")
)

// Swap is a priced two-leg swap.
type Swap struct {
	Price           float64 // traded token unit price in quote currency
	Notional        float64 // swap size in quote currency
	Mint            string  // traded token
	ReferenceAmount float64 // |delta| of the reference leg
	TokenAmount     float64 // |delta| of the traded leg
	Side            string  // domain.SwapSideBuy when the reference leg was spent
}

// Resolve prices a two-leg swap against WSOL.
func Resolve(diffs []Diff, referencePrice float64) (Swap, error) {
	return ResolveAgainst(diffs, WSOLMint, referencePrice)
}

// ResolveAgainst prices a two-leg swap where exactly one leg is referenceMint.
//
//	price    = referenceAmount / tokenAmount * referencePrice
//	notional = referenceAmount * referencePrice
func ResolveAgainst(diffs []Diff, referenceMint string, referencePrice float64) (Swap, error) {
	if len(diffs) != 2 {
		return Swap{}, fmt.Errorf("%w: got %d", ErrLegCount, len(diffs))
	}
	if math.IsNaN(referencePrice) || math.IsInf(referencePrice, 0) || referencePrice <= 0 {
		return Swap{}, fmt.Errorf("%w: %v", ErrInvalidReferencePrice, referencePrice)
	}

	var ref, token Diff
	switch {
	case diffs[0].Mint == referenceMint && diffs[1].Mint != referenceMint:
		ref, token = diffs[0], diffs[1]
	case diffs[1].Mint == referenceMint && diffs[0].Mint != referenceMint:
		ref, token = diffs[1], diffs[0]
	default:
		return Swap{}, fmt.Errorf("%w: %s/%s", ErrNonReferenceSwap, diffs[0].Mint, diffs[1].Mint)
	}

	refAmount := math.Abs(ref.Delta)
	tokenAmount := math.Abs(token.Delta)
	if tokenAmount == 0 {
		return Swap{}, fmt.Errorf("%w: %s", ErrZeroTradedAmount, token.Mint)
	}

	side := domain.SwapSideSell
	if ref.Delta < 0 {
		side = domain.SwapSideBuy
	}

	return Swap{
		Price:           refAmount / tokenAmount * referencePrice,
		Notional:        refAmount * referencePrice,
		Mint:            token.Mint,
		ReferenceAmount: refAmount,
		TokenAmount:     tokenAmount,
		Side:            side,
	}, nil
}
