package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

func newTestSwap(id, sig, mint string, ts int64) *domain.PricedSwap {
	return &domain.PricedSwap{
		SwapID:          id,
		TxSignature:     sig,
		Slot:            ts / 400,
		Timestamp:       ts,
		Mint:            mint,
		ReferenceMint:   "So11111111111111111111111111111111111111112",
		Owner:           "Owner1",
		Side:            domain.SwapSideBuy,
		TokenAmount:     1000,
		ReferenceAmount: 2,
		ReferencePrice:  150,
		Price:           0.3,
		Notional:        300,
	}
}

func TestPricedSwapStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPricedSwapStore(pool)

	swap := newTestSwap("swap-1", "Tx1", "MintA", 1700000001000)
	require.NoError(t, store.Insert(ctx, swap))

	got, err := store.GetByID(ctx, "swap-1")
	require.NoError(t, err)

	assert.Equal(t, swap.TxSignature, got.TxSignature)
	assert.Equal(t, swap.Slot, got.Slot)
	assert.Equal(t, swap.Timestamp, got.Timestamp)
	assert.Equal(t, swap.Mint, got.Mint)
	assert.Equal(t, swap.ReferenceMint, got.ReferenceMint)
	assert.Equal(t, swap.Owner, got.Owner)
	assert.Equal(t, swap.Side, got.Side)
	assert.InDelta(t, swap.Price, got.Price, 1e-12)
	assert.InDelta(t, swap.Notional, got.Notional, 1e-12)
	assert.NotZero(t, got.CreatedAt)
}

func TestPricedSwapStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPricedSwapStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPricedSwapStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPricedSwapStore(pool)

	swap := newTestSwap("swap-dup", "TxDup", "MintA", 1700000001000)
	require.NoError(t, store.Insert(ctx, swap))

	err := store.Insert(ctx, swap)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPricedSwapStore_InsertBulkRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPricedSwapStore(pool)

	require.NoError(t, store.Insert(ctx, newTestSwap("a", "Tx1", "MintA", 1000)))

	err := store.InsertBulk(ctx, []*domain.PricedSwap{
		newTestSwap("b", "Tx2", "MintA", 2000),
		newTestSwap("a", "Tx1", "MintA", 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	swaps, err := store.GetByMint(ctx, "MintA")
	require.NoError(t, err)
	assert.Len(t, swaps, 1, "bulk insert must be atomic")
}

func TestPricedSwapStore_Queries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPricedSwapStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.PricedSwap{
		newTestSwap("c", "Tx3", "MintA", 3000),
		newTestSwap("a", "Tx1", "MintA", 1000),
		newTestSwap("b", "Tx2", "MintA", 2000),
		newTestSwap("d", "Tx2", "MintB", 2000),
	}))

	byMint, err := store.GetByMint(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, byMint, 3)
	assert.Equal(t, "a", byMint[0].SwapID)
	assert.Equal(t, "b", byMint[1].SwapID)
	assert.Equal(t, "c", byMint[2].SwapID)

	ranged, err := store.GetByTimeRange(ctx, "MintA", 1500, 3000)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "b", ranged[0].SwapID)

	bySig, err := store.GetBySignature(ctx, "Tx2")
	require.NoError(t, err)
	require.Len(t, bySig, 2)
	assert.Equal(t, "MintA", bySig[0].Mint)
	assert.Equal(t, "MintB", bySig[1].Mint)
}
