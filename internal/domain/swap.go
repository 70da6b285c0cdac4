package domain

// PricedSwap is a two-leg swap valued against the reference asset.
// Corresponds to priced_swaps table in PostgreSQL.
type PricedSwap struct {
	SwapID          string  // deterministic hash of (tx_signature, mint)
	TxSignature     string  // Solana transaction signature
	Slot            int64   // Solana slot number
	Timestamp       int64   // block time, Unix milliseconds
	Mint            string  // traded token mint
	ReferenceMint   string  // pivot asset mint (WSOL)
	Owner           string  // owner recorded on the reference leg
	Side            string  // "buy" | "sell"
	TokenAmount     float64 // |delta| of the traded token (UI units)
	ReferenceAmount float64 // |delta| of the reference asset (UI units)
	ReferencePrice  float64 // reference asset price in quote currency
	Price           float64 // traded token price in quote currency
	Notional        float64 // swap size in quote currency
	CreatedAt       int64   // record creation timestamp (ms)
}

// Swap side constants
const (
	SwapSideBuy  = "buy"
	SwapSideSell = "sell"
)

// ToPricePoint projects the swap onto the analytics timeseries.
func (s *PricedSwap) ToPricePoint() *PricePoint {
	return &PricePoint{
		Mint:        s.Mint,
		TxSignature: s.TxSignature,
		TimestampMs: s.Timestamp,
		Slot:        s.Slot,
		Price:       s.Price,
		Notional:    s.Notional,
		Side:        s.Side,
	}
}
