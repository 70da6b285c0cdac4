package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

// PricedSwapStore implements storage.PricedSwapStore using PostgreSQL.
type PricedSwapStore struct {
	pool *Pool
}

// NewPricedSwapStore creates a new PricedSwapStore.
func NewPricedSwapStore(pool *Pool) *PricedSwapStore {
	return &PricedSwapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PricedSwapStore = (*PricedSwapStore)(nil)

const insertPricedSwapQuery = `
	INSERT INTO priced_swaps (
		swap_id, tx_signature, slot, timestamp, mint, reference_mint, owner, side,
		token_amount, reference_amount, reference_price, price, notional
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

const selectPricedSwapColumns = `
	SELECT swap_id, tx_signature, slot, timestamp, mint, reference_mint, owner, side,
		token_amount, reference_amount, reference_price, price, notional, created_at
	FROM priced_swaps
`

func insertArgs(s *domain.PricedSwap) []any {
	return []any{
		s.SwapID,
		s.TxSignature,
		s.Slot,
		s.Timestamp,
		s.Mint,
		s.ReferenceMint,
		s.Owner,
		s.Side,
		s.TokenAmount,
		s.ReferenceAmount,
		s.ReferencePrice,
		s.Price,
		s.Notional,
	}
}

// Insert adds a new priced swap. Returns ErrDuplicateKey if swap_id exists.
func (s *PricedSwapStore) Insert(ctx context.Context, swap *domain.PricedSwap) error {
	if swap == nil || swap.SwapID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertPricedSwapQuery, insertArgs(swap)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert priced swap: %w", err)
	}
	return nil
}

// InsertBulk adds multiple swaps atomically. Fails entire batch on any duplicate.
func (s *PricedSwapStore) InsertBulk(ctx context.Context, swaps []*domain.PricedSwap) error {
	if len(swaps) == 0 {
		return nil
	}
	for _, swap := range swaps {
		if swap == nil || swap.SwapID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, swap := range swaps {
		if _, err := tx.Exec(ctx, insertPricedSwapQuery, insertArgs(swap)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert priced swap in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
func (s *PricedSwapStore) GetByID(ctx context.Context, swapID string) (*domain.PricedSwap, error) {
	row := s.pool.QueryRow(ctx, selectPricedSwapColumns+` WHERE swap_id = $1`, swapID)

	swap, err := scanPricedSwap(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get priced swap by id: %w", err)
	}
	return swap, nil
}

// GetBySignature retrieves all swaps priced from a transaction.
func (s *PricedSwapStore) GetBySignature(ctx context.Context, txSignature string) ([]*domain.PricedSwap, error) {
	query := selectPricedSwapColumns + `
		WHERE tx_signature = $1
		ORDER BY mint ASC
	`

	rows, err := s.pool.Query(ctx, query, txSignature)
	if err != nil {
		return nil, fmt.Errorf("get priced swaps by signature: %w", err)
	}
	defer rows.Close()

	return scanPricedSwaps(rows)
}

// GetByMint retrieves all swaps of a token, ordered by timestamp ASC.
func (s *PricedSwapStore) GetByMint(ctx context.Context, mint string) ([]*domain.PricedSwap, error) {
	query := selectPricedSwapColumns + `
		WHERE mint = $1
		ORDER BY timestamp ASC, slot ASC, swap_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get priced swaps by mint: %w", err)
	}
	defer rows.Close()

	return scanPricedSwaps(rows)
}

// GetByTimeRange retrieves swaps of a token within [start, end] (inclusive).
func (s *PricedSwapStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PricedSwap, error) {
	query := selectPricedSwapColumns + `
		WHERE mint = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, slot ASC, swap_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("get priced swaps by time range: %w", err)
	}
	defer rows.Close()

	return scanPricedSwaps(rows)
}

func scanPricedSwap(row pgx.Row) (*domain.PricedSwap, error) {
	var swap domain.PricedSwap

	err := row.Scan(
		&swap.SwapID,
		&swap.TxSignature,
		&swap.Slot,
		&swap.Timestamp,
		&swap.Mint,
		&swap.ReferenceMint,
		&swap.Owner,
		&swap.Side,
		&swap.TokenAmount,
		&swap.ReferenceAmount,
		&swap.ReferencePrice,
		&swap.Price,
		&swap.Notional,
		&swap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &swap, nil
}

func scanPricedSwaps(rows pgx.Rows) ([]*domain.PricedSwap, error) {
	var swaps []*domain.PricedSwap

	for rows.Next() {
		swap, err := scanPricedSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan priced swap row: %w", err)
		}
		swaps = append(swaps, swap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priced swap rows: %w", err)
	}

	return swaps, nil
}
