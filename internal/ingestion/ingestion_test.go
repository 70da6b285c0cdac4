package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/price"
	"solana-swap-pricer/internal/pricing"
	"solana-swap-pricer/internal/solana"
	"solana-swap-pricer/internal/solana/stub"
	"solana-swap-pricer/internal/storage/memory"
	"solana-swap-pricer/internal/swapdiff"
)

const (
	wsol  = swapdiff.WSOLMint
	token = "TokenMint111111111111111111111111111111111"
)

var quiet = log.New(io.Discard, "", 0)

type env struct {
	rpc     *stub.RPCClient
	swaps   *memory.PricedSwapStore
	metrics *observability.Metrics
	pricer  *pricing.Pricer
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		rpc:     stub.NewRPCClient(),
		swaps:   memory.NewPricedSwapStore(),
		metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	}

	p, err := pricing.NewPricer(pricing.Config{
		RPC:     e.rpc,
		Prices:  price.NewStaticSource(150),
		Swaps:   e.swaps,
		Metrics: e.metrics,
		Logger:  quiet,
	})
	require.NoError(t, err)
	e.pricer = p
	return e
}

func swapTx(sig string, slot int64) *solana.Transaction {
	return stub.Transaction(sig, slot, 1_700_000_000+slot,
		[]solana.UITokenBalance{
			stub.Balance(1, wsol, "Trader", 10),
			stub.Balance(2, token, "Trader", 0),
		},
		[]solana.UITokenBalance{
			stub.Balance(1, wsol, "Trader", 8),
			stub.Balance(2, token, "Trader", 1000),
		})
}

func nonReferenceTx(sig string) *solana.Transaction {
	return stub.Transaction(sig, 1, 1,
		[]solana.UITokenBalance{stub.Balance(0, "A", "x", 1), stub.Balance(1, "B", "x", 1)},
		[]solana.UITokenBalance{stub.Balance(0, "A", "x", 2), stub.Balance(1, "B", "x", 0)})
}

func TestLive_PricesNotifiedTransactions(t *testing.T) {
	e := newEnv(t)
	e.rpc.AddTransaction(swapTx("a", 10))
	e.rpc.AddTransaction(nonReferenceTx("b"))

	ws := stub.NewWSClient()
	ws.Send("prog1", solana.LogNotification{Signature: "a", Slot: 10})
	ws.Send("prog2", solana.LogNotification{Signature: "a", Slot: 10}) // same tx via second program
	ws.Send("prog1", solana.LogNotification{Signature: "b", Slot: 11})
	ws.Send("prog2", solana.LogNotification{Signature: "c", Slot: 12, Err: "failed"})
	require.NoError(t, ws.Close())

	live := NewLive(LiveOptions{
		Stream:     ws,
		Pricer:     e.pricer,
		Programs:   []string{"prog1", "prog2"},
		Workers:    2,
		RetryDelay: time.Millisecond,
		Metrics:    e.metrics,
		Logger:     quiet,
	})

	res, err := live.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)

	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, e.rpc.CallCount("a"))

	swaps, err := e.swaps.GetByMint(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, domain.SwapSideBuy, swaps[0].Side)

	assert.Equal(t, 4.0, testutil.ToFloat64(e.metrics.NotificationsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.NotificationsSkipped.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.NotificationsSkipped.WithLabelValues("failed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(e.metrics.HighestSlotSeen))
}

func TestLive_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ws := stub.NewWSClient()
	defer ws.Close()

	live := NewLive(LiveOptions{
		Stream:   ws,
		Pricer:   e.pricer,
		Programs: []string{"prog1"},
		Metrics:  e.metrics,
		Logger:   quiet,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := live.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("live runner did not stop")
	}
}

func TestLive_NoPrograms(t *testing.T) {
	live := NewLive(LiveOptions{Stream: stub.NewWSClient(), Logger: quiet})
	res, err := live.Run(context.Background())
	assert.Error(t, err)
	assert.NotNil(t, res)
}

func TestBackfill_PagesHistory(t *testing.T) {
	e := newEnv(t)

	var sigs []solana.SignatureInfo
	for slot := int64(5); slot >= 1; slot-- {
		sig := fmt.Sprintf("s%d", slot)
		info := solana.SignatureInfo{Signature: sig, Slot: slot}
		if slot == 3 {
			info.Err = map[string]interface{}{"InstructionError": "x"}
		} else {
			e.rpc.AddTransaction(swapTx(sig, slot))
		}
		sigs = append(sigs, info)
	}
	e.rpc.AddSignatures("Pool", sigs)

	b := NewBackfiller(BackfillOptions{
		RPC:        e.rpc,
		Pricer:     e.pricer,
		Address:    "Pool",
		PageSize:   2,
		RetryDelay: time.Millisecond,
		Metrics:    e.metrics,
		Logger:     quiet,
	})

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Seen)
	assert.Equal(t, 4, res.Priced)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, e.rpc.CallCount("s3"), "failed signatures are not fetched")

	swaps, err := e.swaps.GetByMint(context.Background(), token)
	require.NoError(t, err)
	assert.Len(t, swaps, 4)
}

func TestBackfill_Limit(t *testing.T) {
	e := newEnv(t)

	var sigs []solana.SignatureInfo
	for slot := int64(5); slot >= 1; slot-- {
		sig := fmt.Sprintf("s%d", slot)
		e.rpc.AddTransaction(swapTx(sig, slot))
		sigs = append(sigs, solana.SignatureInfo{Signature: sig, Slot: slot})
	}
	e.rpc.AddSignatures("Pool", sigs)

	b := NewBackfiller(BackfillOptions{
		RPC:      e.rpc,
		Pricer:   e.pricer,
		Address:  "Pool",
		Limit:    3,
		PageSize: 2,
		Metrics:  e.metrics,
		Logger:   quiet,
	})

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Priced)
	assert.Equal(t, 0, e.rpc.CallCount("s2"))
	assert.Equal(t, 0, e.rpc.CallCount("s1"))
}

func TestBackfill_RecordsTipSlot(t *testing.T) {
	e := newEnv(t)
	e.rpc.Slot = 900
	e.rpc.AddTransaction(swapTx("s1", 10))
	e.rpc.AddSignatures("Pool", []solana.SignatureInfo{{Signature: "s1", Slot: 10}})

	b := NewBackfiller(BackfillOptions{
		RPC:     e.rpc,
		Pricer:  e.pricer,
		Address: "Pool",
		Metrics: e.metrics,
		Logger:  quiet,
	})

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 900.0, testutil.ToFloat64(e.metrics.HighestSlotSeen))
}

func TestBackfill_SlotErrorIsNotFatal(t *testing.T) {
	e := newEnv(t)
	e.rpc.SlotErr = errors.New("node unavailable")
	e.rpc.AddTransaction(swapTx("s1", 10))
	e.rpc.AddSignatures("Pool", []solana.SignatureInfo{{Signature: "s1", Slot: 10}})

	b := NewBackfiller(BackfillOptions{
		RPC:     e.rpc,
		Pricer:  e.pricer,
		Address: "Pool",
		Metrics: e.metrics,
		Logger:  quiet,
	})

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 10.0, testutil.ToFloat64(e.metrics.HighestSlotSeen))
}

func TestSlotsBehind(t *testing.T) {
	assert.Equal(t, int64(90), slotsBehind(100, 10))
	assert.Equal(t, int64(0), slotsBehind(0, 10), "unknown tip")
	assert.Equal(t, int64(0), slotsBehind(10, 20))
}

func TestBackfill_RequiresAddress(t *testing.T) {
	b := NewBackfiller(BackfillOptions{Logger: quiet})
	_, err := b.Run(context.Background())
	assert.Error(t, err)
}

const archive = `{"signature":"r1","slot":7,"block_time":1700000007,"pre":[{"account_index":1,"mint":"So11111111111111111111111111111111111111112","owner":"Trader","ui_token_amount":{"amount":"10000000000","decimals":9,"uiAmount":10}},{"account_index":2,"mint":"TokenMint111111111111111111111111111111111","owner":"Trader","ui_token_amount":{"amount":"500000000","decimals":6,"uiAmount":500}}],"post":[{"account_index":1,"mint":"So11111111111111111111111111111111111111112","owner":"Trader","ui_token_amount":{"amount":"11000000000","decimals":9,"uiAmount":11}},{"account_index":2,"mint":"TokenMint111111111111111111111111111111111","owner":"Trader","ui_token_amount":{"amount":"0","decimals":6,"uiAmount":0}}]}
not json

{"signature":"r2","slot":8,"block_time":1700000008,"err":{"InstructionError":[0,"Custom"]},"pre":[],"post":[]}
{"signature":"r3","slot":9,"block_time":1700000009,"pre":[],"post":[]}
`

func TestReplay(t *testing.T) {
	e := newEnv(t)
	r := NewReplayer(ReplayOptions{Pricer: e.pricer, Metrics: e.metrics, Logger: quiet})

	res, err := r.Replay(context.Background(), strings.NewReader(archive))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 2, res.Skipped) // r2 failed on chain, r3 has no legs
	assert.Equal(t, 1, res.Errors)

	swaps, err := e.swaps.GetBySignature(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, domain.SwapSideSell, swaps[0].Side)
	assert.Equal(t, int64(1_700_000_007_000), swaps[0].Timestamp)
	assert.InDelta(t, 0.3, swaps[0].Price, 1e-12)
}

func TestReplayFile_Missing(t *testing.T) {
	r := NewReplayer(ReplayOptions{Pricer: newEnv(t).pricer, Logger: quiet})
	res, err := r.ReplayFile(context.Background(), t.TempDir()+"/missing.jsonl")
	assert.Error(t, err)
	assert.NotNil(t, res)
}

type flakyPricer struct {
	calls atomic.Int32
	fails int32
	err   error
}

func (f *flakyPricer) PriceTransaction(context.Context, string) (*domain.PricedSwap, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, f.err
	}
	return &domain.PricedSwap{}, nil
}

func TestPriceWithRetry(t *testing.T) {
	transient := &flakyPricer{fails: 2, err: errors.New("timeout")}
	_, err := priceWithRetry(context.Background(), transient, "sig", 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), transient.calls.Load())

	exhausted := &flakyPricer{fails: 5, err: errors.New("timeout")}
	_, err = priceWithRetry(context.Background(), exhausted, "sig", 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, int32(3), exhausted.calls.Load())

	skip := &flakyPricer{fails: 5, err: swapdiff.ErrLegCount}
	_, err = priceWithRetry(context.Background(), skip, "sig", 3, time.Millisecond)
	assert.ErrorIs(t, err, swapdiff.ErrLegCount)
	assert.Equal(t, int32(1), skip.calls.Load())
}

func TestRecentSet(t *testing.T) {
	s := newRecentSet(2)

	assert.True(t, s.add("a"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.True(t, s.add("c")) // evicts a
	assert.True(t, s.add("a"))
	assert.False(t, s.add("c"))
}
