package lookup

import "solana-swap-pricer/internal/domain"

// BuildCandles groups sorted points into fixed interval buckets aligned to
// the Unix epoch. Empty intervals produce no candle.
//
// Aggregation per (mint, bucket):
//   - open/close = FIRST/LAST(price) by point order
//   - high/low = MAX/MIN(price)
//   - notional = SUM(notional), split by side
//   - swap_count = COUNT(*)
func BuildCandles(points []*domain.PricePoint, intervalMs int64) []*domain.Candle {
	if len(points) == 0 || intervalMs <= 0 {
		return nil
	}

	var result []*domain.Candle
	var current *domain.Candle

	for _, p := range points {
		bucket := p.TimestampMs - p.TimestampMs%intervalMs
		if current == nil || current.Mint != p.Mint || current.OpenTimeMs != bucket {
			if current != nil {
				result = append(result, current)
			}
			current = &domain.Candle{
				Mint:       p.Mint,
				OpenTimeMs: bucket,
				Open:       p.Price,
				High:       p.Price,
				Low:        p.Price,
			}
		}

		current.Close = p.Price
		if p.Price > current.High {
			current.High = p.Price
		}
		if p.Price < current.Low {
			current.Low = p.Price
		}
		current.Notional += p.Notional
		switch p.Side {
		case domain.SwapSideBuy:
			current.BuyNotional += p.Notional
		case domain.SwapSideSell:
			current.SellNotional += p.Notional
		}
		current.SwapCount++
	}

	if current != nil {
		result = append(result, current)
	}

	return result
}
