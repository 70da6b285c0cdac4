package memory

import (
	"context"
	"sort"
	"sync"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

// PricePointStore is an in-memory implementation of storage.PricePointStore.
type PricePointStore struct {
	mu   sync.RWMutex
	data map[pointKey]*domain.PricePoint
}

type pointKey struct {
	mint        string
	txSignature string
}

// NewPricePointStore creates a new in-memory price point store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{
		data: make(map[pointKey]*domain.PricePoint),
	}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *PricePointStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[pointKey]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.Mint == "" || p.TxSignature == "" {
			return storage.ErrInvalidInput
		}
		key := pointKey{p.Mint, p.TxSignature}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		copy := *p
		s.data[pointKey{p.Mint, p.TxSignature}] = &copy
	}

	return nil
}

// GetByMint retrieves all points for a token, ordered by timestamp ASC.
func (s *PricePointStore) GetByMint(ctx context.Context, mint string) ([]*domain.PricePoint, error) {
	return s.GetByTimeRange(ctx, mint, minInt64, maxInt64)
}

// GetByTimeRange retrieves points for a token within [start, end] (inclusive).
func (s *PricePointStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.Mint == mint && p.TimestampMs >= start && p.TimestampMs <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].TxSignature < result[j].TxSignature
	})

	return result, nil
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

var _ storage.PricePointStore = (*PricePointStore)(nil)
