package storage

import (
	"context"

	"solana-swap-pricer/internal/domain"
)

// PricedSwapStore provides access to priced_swaps storage.
type PricedSwapStore interface {
	// Insert adds a new priced swap. Returns ErrDuplicateKey if swap_id exists.
	Insert(ctx context.Context, s *domain.PricedSwap) error

	// InsertBulk adds multiple swaps atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, swaps []*domain.PricedSwap) error

	// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, swapID string) (*domain.PricedSwap, error)

	// GetBySignature retrieves all swaps priced from a transaction.
	GetBySignature(ctx context.Context, txSignature string) ([]*domain.PricedSwap, error)

	// GetByMint retrieves all swaps of a token, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.PricedSwap, error)

	// GetByTimeRange retrieves swaps of a token within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PricedSwap, error)
}

// PricePointStore provides access to swap_prices storage.
type PricePointStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (mint, tx_signature).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetByMint retrieves all points for a token, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.PricePoint, error)

	// GetByTimeRange retrieves points for a token within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PricePoint, error)
}
