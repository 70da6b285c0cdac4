package price

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource serves prices set in memory.
// Mints without an explicit price get the fallback, if one was given.
type StaticSource struct {
	mu       sync.RWMutex
	prices   map[string]float64
	fallback float64
}

// NewStaticSource creates a StaticSource. A fallback <= 0 disables it.
func NewStaticSource(fallback float64) *StaticSource {
	return &StaticSource{
		prices:   make(map[string]float64),
		fallback: fallback,
	}
}

// Set fixes the price of a mint.
func (s *StaticSource) Set(mint string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[mint] = price
}

// Price implements Source.
func (s *StaticSource) Price(_ context.Context, mint string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.prices[mint]; ok {
		return p, nil
	}
	if s.fallback > 0 {
		return s.fallback, nil
	}
	return 0, fmt.Errorf("%w: no static price for %s", ErrPriceUnavailable, mint)
}

var _ Source = (*StaticSource)(nil)
