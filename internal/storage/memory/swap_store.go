package memory

import (
	"context"
	"sort"
	"sync"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

// PricedSwapStore is an in-memory implementation of storage.PricedSwapStore.
type PricedSwapStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PricedSwap // keyed by swap_id
}

// NewPricedSwapStore creates a new in-memory priced swap store.
func NewPricedSwapStore() *PricedSwapStore {
	return &PricedSwapStore{
		data: make(map[string]*domain.PricedSwap),
	}
}

// Insert adds a new swap. Returns ErrDuplicateKey if exists.
func (s *PricedSwapStore) Insert(_ context.Context, swap *domain.PricedSwap) error {
	if swap == nil || swap.SwapID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[swap.SwapID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *swap
	s.data[swap.SwapID] = &copy
	return nil
}

// InsertBulk adds multiple swaps atomically. Fails entire batch on any duplicate.
func (s *PricedSwapStore) InsertBulk(_ context.Context, swaps []*domain.PricedSwap) error {
	if len(swaps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(swaps))

	// First pass: check for duplicates (existing + intra-batch)
	for _, swap := range swaps {
		if swap == nil || swap.SwapID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[swap.SwapID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[swap.SwapID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[swap.SwapID] = struct{}{}
	}

	for _, swap := range swaps {
		copy := *swap
		s.data[swap.SwapID] = &copy
	}

	return nil
}

// GetByID retrieves a swap by its ID.
func (s *PricedSwapStore) GetByID(_ context.Context, swapID string) (*domain.PricedSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, ok := s.data[swapID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *swap
	return &copy, nil
}

// GetBySignature retrieves all swaps priced from a transaction.
func (s *PricedSwapStore) GetBySignature(_ context.Context, txSignature string) ([]*domain.PricedSwap, error) {
	return s.filter(func(swap *domain.PricedSwap) bool {
		return swap.TxSignature == txSignature
	}), nil
}

// GetByMint retrieves all swaps of a token, ordered by timestamp ASC.
func (s *PricedSwapStore) GetByMint(_ context.Context, mint string) ([]*domain.PricedSwap, error) {
	return s.filter(func(swap *domain.PricedSwap) bool {
		return swap.Mint == mint
	}), nil
}

// GetByTimeRange retrieves swaps of a token within [start, end] (inclusive).
func (s *PricedSwapStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PricedSwap, error) {
	return s.filter(func(swap *domain.PricedSwap) bool {
		return swap.Mint == mint && swap.Timestamp >= start && swap.Timestamp <= end
	}), nil
}

// filter returns copies of matching swaps ordered by (timestamp, slot, swap_id).
func (s *PricedSwapStore) filter(match func(*domain.PricedSwap) bool) []*domain.PricedSwap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricedSwap
	for _, swap := range s.data {
		if match(swap) {
			copy := *swap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].SwapID < result[j].SwapID
	})

	return result
}

var _ storage.PricedSwapStore = (*PricedSwapStore)(nil)
