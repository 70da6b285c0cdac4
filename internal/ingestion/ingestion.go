// Package ingestion feeds transactions to the pricer from a live log stream,
// from signature history, or from an archive of balance snapshots.
package ingestion

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/pricing"
	"solana-swap-pricer/internal/swapdiff"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

// TxPricer prices a transaction by signature.
type TxPricer interface {
	PriceTransaction(ctx context.Context, signature string) (*domain.PricedSwap, error)
}

// DiffPricer prices already reconciled legs.
type DiffPricer interface {
	PriceDiffs(ctx context.Context, info pricing.TxInfo, diffs []swapdiff.Diff) (*domain.PricedSwap, error)
	Mode() pricing.Mode
}

// Result contains statistics from an ingestion run.
type Result struct {
	Seen     int // transactions handed to the pricer
	Priced   int
	Skipped  int // not a priceable swap, failed on chain, or already priced
	Errors   int
	Duration time.Duration
}

type counters struct {
	seen, priced, skipped, errors atomic.Int64
}

func (c *counters) result(start time.Time) *Result {
	return &Result{
		Seen:     int(c.seen.Load()),
		Priced:   int(c.priced.Load()),
		Skipped:  int(c.skipped.Load()),
		Errors:   int(c.errors.Load()),
		Duration: time.Since(start),
	}
}

// record classifies the outcome of one pricing attempt.
func (c *counters) record(logger *log.Logger, signature string, swap *domain.PricedSwap, err error) {
	switch {
	case err == nil:
		c.priced.Add(1)
		logger.Printf("priced %s: %s %s @ %.10g (notional %.2f)", signature, swap.Side, swap.Mint, swap.Price, swap.Notional)
	case pricing.IsSkip(err):
		c.skipped.Add(1)
	case errors.Is(err, context.Canceled):
	default:
		c.errors.Add(1)
		logger.Printf("price %s: %v", signature, err)
	}
}

// priceWithRetry retries transient failures with exponential backoff: 500ms, 1s, 2s.
// Transactions are often not yet queryable when their logs are first seen.
func priceWithRetry(ctx context.Context, p TxPricer, signature string, attempts int, delay time.Duration) (*domain.PricedSwap, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		swap, err := p.PriceTransaction(ctx, signature)
		if err == nil || pricing.IsSkip(err) {
			return swap, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(delay * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
