package lookup

import (
	"context"
	"errors"
	"testing"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
	"solana-swap-pricer/internal/storage/memory"
)

func series() []*domain.PricePoint {
	return []*domain.PricePoint{
		{Mint: "TKN", TxSignature: "a", TimestampMs: 1000, Price: 1.0, Notional: 10, Side: domain.SwapSideBuy},
		{Mint: "TKN", TxSignature: "b", TimestampMs: 2000, Price: 2.0, Notional: 20, Side: domain.SwapSideSell},
		{Mint: "TKN", TxSignature: "c", TimestampMs: 3000, Price: 3.0, Notional: 30, Side: domain.SwapSideBuy},
	}
}

func TestPriceAt_Empty(t *testing.T) {
	_, err := PriceAt(1000, nil)
	if err != ErrNoPriceData {
		t.Errorf("expected ErrNoPriceData, got %v", err)
	}
}

func TestPriceAt_ExactMatch(t *testing.T) {
	p, err := PriceAt(2000, series())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 2.0 {
		t.Errorf("expected 2.0, got %f", p.Price)
	}
}

func TestPriceAt_BeforeTarget(t *testing.T) {
	// Target 2500 should return price at 2000
	p, err := PriceAt(2500, series())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TxSignature != "b" {
		t.Errorf("expected point b, got %s", p.TxSignature)
	}
}

func TestPriceAt_AfterLast(t *testing.T) {
	p, err := PriceAt(99999, series())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 3.0 {
		t.Errorf("expected 3.0, got %f", p.Price)
	}
}

func TestPriceAt_BeforeFirst(t *testing.T) {
	// No price is known yet at 500
	_, err := PriceAt(500, series())
	if err != ErrNoPriceData {
		t.Errorf("expected ErrNoPriceData, got %v", err)
	}
}

func TestBuildCandles(t *testing.T) {
	points := append(series(),
		&domain.PricePoint{Mint: "TKN", TxSignature: "d", TimestampMs: 3500, Price: 0.5, Notional: 5, Side: domain.SwapSideSell},
	)

	candles := BuildCandles(points, 2000)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.OpenTimeMs != 0 || first.SwapCount != 1 || first.Open != 1.0 || first.Close != 1.0 {
		t.Errorf("unexpected first candle: %+v", first)
	}

	second := candles[1]
	if second.OpenTimeMs != 2000 {
		t.Errorf("expected bucket 2000, got %d", second.OpenTimeMs)
	}
	if second.Open != 2.0 || second.Close != 0.5 || second.High != 3.0 || second.Low != 0.5 {
		t.Errorf("unexpected OHLC: %+v", second)
	}
	if second.Notional != 55 || second.BuyNotional != 30 || second.SellNotional != 25 {
		t.Errorf("unexpected notional split: %+v", second)
	}
	if second.SwapCount != 3 {
		t.Errorf("expected 3 swaps, got %d", second.SwapCount)
	}
}

func TestBuildCandles_Empty(t *testing.T) {
	if got := BuildCandles(nil, 1000); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := BuildCandles(series(), 0); got != nil {
		t.Errorf("expected nil for zero interval, got %v", got)
	}
}

func TestService(t *testing.T) {
	store := memory.NewPricePointStore()
	ctx := context.Background()
	if err := store.InsertBulk(ctx, series()); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	svc := NewService(store)

	p, err := svc.PriceAt(ctx, "TKN", 2999)
	if err != nil {
		t.Fatalf("PriceAt failed: %v", err)
	}
	if p.Price != 2.0 {
		t.Errorf("expected 2.0, got %f", p.Price)
	}

	candles, err := svc.Candles(ctx, "TKN", 0, 10000, 60000)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 1 || candles[0].SwapCount != 3 {
		t.Errorf("expected one candle with 3 swaps, got %+v", candles)
	}

	_, err = svc.Candles(ctx, "TKN", 0, 10000, 0)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
