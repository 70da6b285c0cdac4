package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/pricing"
	"solana-swap-pricer/internal/solana"
)

// maxSnapshotLine bounds a single archived transaction.
const maxSnapshotLine = 4 << 20

// Snapshot is one archived transaction: a JSON Lines record of canonical
// token balances before and after execution.
type Snapshot struct {
	Signature string                `json:"signature"`
	Slot      int64                 `json:"slot"`
	BlockTime int64                 `json:"block_time"`
	Err       interface{}           `json:"err,omitempty"`
	Pre       []solana.TokenBalance `json:"pre"`
	Post      []solana.TokenBalance `json:"post"`
}

// ReplayOptions contains configuration for creating a Replayer.
type ReplayOptions struct {
	Pricer  DiffPricer
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// Replayer prices archived snapshots without RPC access.
type Replayer struct {
	pricer  DiffPricer
	metrics *observability.Metrics
	logger  *log.Logger
}

// NewReplayer creates a new snapshot replayer.
func NewReplayer(opts ReplayOptions) *Replayer {
	r := &Replayer{
		pricer:  opts.Pricer,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if r.metrics == nil {
		r.metrics = observability.DefaultMetrics
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r
}

// ReplayFile replays the archive at path.
func (r *Replayer) ReplayFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Result{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	return r.Replay(ctx, f)
}

// Replay prices every snapshot read from rd in order. Malformed lines are
// counted as errors and skipped. The returned Result is never nil.
func (r *Replayer) Replay(ctx context.Context, rd io.Reader) (*Result, error) {
	start := time.Now()
	var stats counters

	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats.result(start), err
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			stats.errors.Add(1)
			r.logger.Printf("replay line %d: %v", line, err)
			continue
		}

		if snap.Err != nil {
			stats.skipped.Add(1)
			continue
		}

		stats.seen.Add(1)
		r.metrics.TransactionsSeen.WithLabelValues("replay").Inc()

		diffs := pricing.Reconcile(r.pricer.Mode(), snap.Pre, snap.Post)
		swap, err := r.pricer.PriceDiffs(ctx, pricing.TxInfo{
			Signature: snap.Signature,
			Slot:      snap.Slot,
			BlockTime: snap.BlockTime,
		}, diffs)
		stats.record(r.logger, snap.Signature, swap, err)
	}

	if err := scanner.Err(); err != nil {
		return stats.result(start), fmt.Errorf("read archive at line %d: %w", line+1, err)
	}

	return stats.result(start), nil
}
