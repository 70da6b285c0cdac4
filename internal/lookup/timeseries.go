// Package lookup answers point-in-time and interval questions over a mint's
// price series.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

// ErrNoPriceData is returned when no price exists at or before the target time.
var ErrNoPriceData = errors.New("no price data available")

// PriceAt returns the last point at or before target.
// Points must be sorted by timestamp ASC, as the stores return them.
func PriceAt(target int64, points []*domain.PricePoint) (*domain.PricePoint, error) {
	// First index with TimestampMs > target
	i := sort.Search(len(points), func(i int) bool {
		return points[i].TimestampMs > target
	})
	if i == 0 {
		return nil, ErrNoPriceData
	}
	return points[i-1], nil
}

// Service reads price series from a PricePointStore.
type Service struct {
	store storage.PricePointStore
}

// NewService creates a lookup Service.
func NewService(store storage.PricePointStore) *Service {
	return &Service{store: store}
}

// PriceAt returns the last price of mint at or before target (Unix ms).
func (s *Service) PriceAt(ctx context.Context, mint string, target int64) (*domain.PricePoint, error) {
	points, err := s.store.GetByTimeRange(ctx, mint, 0, target)
	if err != nil {
		return nil, fmt.Errorf("load price series: %w", err)
	}
	return PriceAt(target, points)
}

// Candles aggregates the points of mint within [from, to] into interval buckets.
func (s *Service) Candles(ctx context.Context, mint string, from, to, intervalMs int64) ([]*domain.Candle, error) {
	if intervalMs <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", storage.ErrInvalidInput)
	}
	points, err := s.store.GetByTimeRange(ctx, mint, from, to)
	if err != nil {
		return nil, fmt.Errorf("load price series: %w", err)
	}
	return BuildCandles(points, intervalMs), nil
}
