package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/solana"
)

// maxSignaturesPage is the node's cap for getSignaturesForAddress.
const maxSignaturesPage = 1000

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC        solana.RPCClient
	Pricer     TxPricer
	Address    string // program or pool whose history is priced
	Before     string // start below this signature; empty starts at the tip
	Until      string // stop at this signature, exclusive
	Limit      int    // max signatures to examine; 0 means until history is exhausted
	PageSize   int    // Default: 1000
	Workers    int    // Default: 4
	RetryDelay time.Duration
	Metrics    *observability.Metrics
	Logger     *log.Logger
}

// Backfiller prices historical transactions of an address, newest first.
type Backfiller struct {
	rpc        solana.RPCClient
	pricer     TxPricer
	address    string
	before     string
	until      string
	limit      int
	pageSize   int
	workers    int
	retryDelay time.Duration
	metrics    *observability.Metrics
	logger     *log.Logger
}

// NewBackfiller creates a new historical backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	b := &Backfiller{
		rpc:        opts.RPC,
		pricer:     opts.Pricer,
		address:    opts.Address,
		before:     opts.Before,
		until:      opts.Until,
		limit:      opts.Limit,
		pageSize:   opts.PageSize,
		workers:    opts.Workers,
		retryDelay: opts.RetryDelay,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if b.pageSize <= 0 || b.pageSize > maxSignaturesPage {
		b.pageSize = maxSignaturesPage
	}
	if b.workers <= 0 {
		b.workers = 4
	}
	if b.retryDelay <= 0 {
		b.retryDelay = defaultRetryDelay
	}
	if b.metrics == nil {
		b.metrics = observability.DefaultMetrics
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	return b
}

// Run pages through the address history and prices every successful transaction.
// The returned Result is never nil.
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	var stats counters

	if b.address == "" {
		return stats.result(start), errors.New("backfill address is required")
	}

	tip, err := b.rpc.GetSlot(ctx)
	if err != nil {
		b.logger.Printf("get slot failed, progress will not show lag: %v", err)
		tip = 0
	}
	b.metrics.UpdateHighestSlot(tip)
	b.logger.Printf("backfilling %s (limit=%d, tip slot=%d)", b.address, b.limit, tip)

	before := b.before
	examined := 0

	for {
		pageSize := b.pageSize
		if b.limit > 0 && b.limit-examined < pageSize {
			pageSize = b.limit - examined
		}

		page, err := b.rpc.GetSignaturesForAddress(ctx, b.address, &solana.SignaturesOpts{
			Before: before,
			Until:  b.until,
			Limit:  pageSize,
		})
		if err != nil {
			return stats.result(start), fmt.Errorf("get signatures before %q: %w", before, err)
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)

		for _, sig := range page {
			examined++
			b.metrics.UpdateHighestSlot(sig.Slot)

			if sig.Err != nil {
				stats.skipped.Add(1)
				continue
			}

			g.Go(func() error {
				stats.seen.Add(1)
				b.metrics.TransactionsSeen.WithLabelValues("backfill").Inc()
				swap, err := priceWithRetry(gctx, b.pricer, sig.Signature, defaultRetryAttempts, b.retryDelay)
				stats.record(b.logger, sig.Signature, swap, err)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return stats.result(start), err
		}

		res := stats.result(start)
		b.logger.Printf("backfill progress: examined=%d priced=%d skipped=%d errors=%d slots_behind_tip=%d",
			examined, res.Priced, res.Skipped, res.Errors, slotsBehind(tip, page[len(page)-1].Slot))

		before = page[len(page)-1].Signature
		if len(page) < pageSize || (b.limit > 0 && examined >= b.limit) {
			break
		}
	}

	return stats.result(start), nil
}

// slotsBehind returns how far slot trails tip, or 0 when tip is unknown.
func slotsBehind(tip, slot int64) int64 {
	if tip <= 0 || slot >= tip {
		return 0
	}
	return tip - slot
}
