// Package pricing turns confirmed transactions into priced swaps.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/idhash"
	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/price"
	"solana-swap-pricer/internal/solana"
	"solana-swap-pricer/internal/storage"
	"solana-swap-pricer/internal/swapdiff"
)

// Mode selects how balance snapshots are reconciled into legs.
type Mode string

const (
	// ModeMint nets balances per mint across the whole transaction.
	ModeMint Mode = "mint"
	// ModeOwner nets balances per (mint, owner) and keeps wallet owners only.
	ModeOwner Mode = "owner"
)

// ParseMode parses a mode name. Empty selects ModeMint.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMint:
		return ModeMint, nil
	case ModeOwner:
		return ModeOwner, nil
	default:
		return "", fmt.Errorf("unknown pricing mode %q", s)
	}
}

// TxInfo identifies the transaction a set of diffs came from.
type TxInfo struct {
	Signature string
	Slot      int64
	BlockTime int64  // Unix seconds, 0 if unknown
	FeePayer  string // owner used when the reference leg has none
}

// Config configures Pricer.
type Config struct {
	RPC    solana.RPCClient // required for PriceTransaction only
	Prices price.Source

	// Stores are optional; nil skips persistence.
	Swaps  storage.PricedSwapStore
	Points storage.PricePointStore

	ReferenceMint string // defaults to WSOL
	Mode          Mode
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// Pricer prices swaps and persists them.
type Pricer struct {
	rpc     solana.RPCClient
	prices  price.Source
	swaps   storage.PricedSwapStore
	points  storage.PricePointStore
	refMint string
	mode    Mode
	metrics *observability.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// NewPricer creates a Pricer.
func NewPricer(cfg Config) (*Pricer, error) {
	if cfg.Prices == nil {
		return nil, errors.New("pricing: price source is required")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}

	p := &Pricer{
		rpc:     cfg.RPC,
		prices:  cfg.Prices,
		swaps:   cfg.Swaps,
		points:  cfg.Points,
		refMint: cfg.ReferenceMint,
		mode:    mode,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     time.Now,
	}
	if p.refMint == "" {
		p.refMint = swapdiff.WSOLMint
	}
	if p.metrics == nil {
		p.metrics = observability.DefaultMetrics
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p, nil
}

// Mode returns the reconcile mode.
func (p *Pricer) Mode() Mode {
	return p.mode
}

// PriceTransaction fetches a transaction and prices the swap it contains.
func (p *Pricer) PriceTransaction(ctx context.Context, signature string) (*domain.PricedSwap, error) {
	if p.rpc == nil {
		return nil, errors.New("pricing: no RPC client configured")
	}

	start := time.Now()
	defer func() { p.metrics.PricingLatency.Observe(time.Since(start).Seconds()) }()

	tx, err := p.rpc.GetTransaction(ctx, signature)
	if err != nil {
		p.metrics.RecordRejected("rpc")
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if tx == nil {
		p.metrics.RecordRejected(RejectReason(ErrTransactionNotFound))
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}
	if tx.Failed() {
		p.metrics.RecordRejected(RejectReason(ErrTransactionFailed))
		return nil, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, tx.Meta.Err)
	}

	var pre, post []solana.UITokenBalance
	if tx.Meta != nil {
		pre, post = tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances
	}

	info := TxInfo{Signature: signature, Slot: tx.Slot, BlockTime: tx.BlockTime, FeePayer: tx.FeePayer()}
	return p.PriceDiffs(ctx, info, Reconcile(p.mode, pre, post))
}

// Reconcile diffs balance snapshots according to mode.
func Reconcile[T swapdiff.BalanceRecord](mode Mode, pre, post []T) []swapdiff.Diff {
	if mode != ModeOwner {
		return swapdiff.Reconcile(pre, post)
	}

	diffs := swapdiff.FilterOwners(swapdiff.ReconcileByOwner(pre, post), solana.IsOnCurve)
	moved := diffs[:0]
	for _, d := range diffs {
		if d.Delta != 0 {
			moved = append(moved, d)
		}
	}
	return moved
}

// PriceDiffs prices already reconciled legs and persists the result.
func (p *Pricer) PriceDiffs(ctx context.Context, info TxInfo, diffs []swapdiff.Diff) (*domain.PricedSwap, error) {
	refPrice, err := p.prices.Price(ctx, p.refMint)
	if err != nil {
		p.metrics.RecordRejected(RejectReason(err))
		return nil, fmt.Errorf("reference price: %w", err)
	}

	swap, err := swapdiff.ResolveAgainst(diffs, p.refMint, refPrice)
	if err != nil {
		p.metrics.RecordRejected(RejectReason(err))
		return nil, fmt.Errorf("resolve %s: %w", info.Signature, err)
	}

	owner := referenceOwner(diffs, p.refMint)
	if owner == "" {
		owner = info.FeePayer
	}

	now := p.now()
	ts := info.BlockTime * 1000
	if info.BlockTime == 0 {
		ts = now.UnixMilli()
	}

	priced := &domain.PricedSwap{
		SwapID:          idhash.ComputeSwapID(info.Signature, swap.Mint),
		TxSignature:     info.Signature,
		Slot:            info.Slot,
		Timestamp:       ts,
		Mint:            swap.Mint,
		ReferenceMint:   p.refMint,
		Owner:           owner,
		Side:            swap.Side,
		TokenAmount:     swap.TokenAmount,
		ReferenceAmount: swap.ReferenceAmount,
		ReferencePrice:  refPrice,
		Price:           swap.Price,
		Notional:        swap.Notional,
		CreatedAt:       now.UnixMilli(),
	}

	if err := p.persist(ctx, priced); err != nil {
		p.metrics.RecordRejected(RejectReason(err))
		return nil, err
	}

	p.metrics.RecordPriced(priced.Side, p.refMint, refPrice)
	return priced, nil
}

// persist writes the price point before the swap row. The swap row marks the
// swap as done, so a retry after a failed point write still stores the point.
func (p *Pricer) persist(ctx context.Context, s *domain.PricedSwap) error {
	if p.points != nil {
		start := time.Now()
		err := p.points.InsertBulk(ctx, []*domain.PricePoint{s.ToPricePoint()})
		p.metrics.RecordDBQuery("points", "insert", time.Since(start), ignoreDuplicate(err))
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store price point %s: %w", s.SwapID, err)
		}
		if err != nil {
			p.logger.Printf("price point for %s already stored", s.TxSignature)
		}
	}

	if p.swaps != nil {
		start := time.Now()
		err := p.swaps.Insert(ctx, s)
		p.metrics.RecordDBQuery("swaps", "insert", time.Since(start), ignoreDuplicate(err))
		if err != nil {
			return fmt.Errorf("store swap %s: %w", s.SwapID, err)
		}
	}

	return nil
}

func ignoreDuplicate(err error) error {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

func referenceOwner(diffs []swapdiff.Diff, refMint string) string {
	for _, d := range diffs {
		if d.Mint == refMint {
			return d.Owner
		}
	}
	return ""
}
