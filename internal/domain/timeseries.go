package domain

// PricePoint is one priced swap in the per-mint price series.
// Corresponds to swap_prices table in ClickHouse.
type PricePoint struct {
	Mint        string  // traded token mint
	TxSignature string  // source transaction
	TimestampMs int64   // Unix timestamp in milliseconds
	Slot        int64   // Solana slot number
	Price       float64 // token price in quote currency
	Notional    float64 // swap size in quote currency
	Side        string  // "buy" | "sell"
}

// Candle aggregates the price points of one mint over a fixed interval.
type Candle struct {
	Mint         string
	OpenTimeMs   int64 // interval start, Unix milliseconds
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Notional     float64 // SUM(notional)
	BuyNotional  float64
	SellNotional float64
	SwapCount    int
}
