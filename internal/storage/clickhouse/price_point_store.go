package clickhouse

import (
	"context"
	"fmt"

	"solana-swap-pricer/internal/domain"
	"solana-swap-pricer/internal/storage"
)

// PricePointStore implements storage.PricePointStore using ClickHouse.
type PricePointStore struct {
	conn *Conn
}

// NewPricePointStore creates a new PricePointStore.
func NewPricePointStore(conn *Conn) *PricePointStore {
	return &PricePointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (mint, tx_signature).
// MergeTree does not enforce uniqueness, so duplicates are checked before the batch is sent.
func (s *PricePointStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		mint        string
		txSignature string
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Mint == "" || p.TxSignature == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Mint, p.TxSignature}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range points {
		exists, err := s.exists(ctx, p.Mint, p.TxSignature)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_prices (
			mint, tx_signature, timestamp_ms, slot, price, notional, side
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Mint, p.TxSignature, uint64(p.TimestampMs), uint64(p.Slot),
			p.Price, p.Notional, p.Side,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all points for a token, ordered by timestamp ASC.
func (s *PricePointStore) GetByMint(ctx context.Context, mint string) ([]*domain.PricePoint, error) {
	query := `
		SELECT mint, tx_signature, timestamp_ms, slot, price, notional, side
		FROM swap_prices
		WHERE mint = ?
		ORDER BY timestamp_ms ASC, slot ASC, tx_signature ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// GetByTimeRange retrieves points for a token within [start, end] (inclusive).
func (s *PricePointStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PricePoint, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	query := `
		SELECT mint, tx_signature, timestamp_ms, slot, price, notional, side
		FROM swap_prices
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, slot ASC, tx_signature ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

func (s *PricePointStore) exists(ctx context.Context, mint, txSignature string) (bool, error) {
	query := `
		SELECT count(*) FROM swap_prices
		WHERE mint = ? AND tx_signature = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, mint, txSignature).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var timestampMs, slot uint64

		err := rows.Scan(
			&p.Mint, &p.TxSignature, &timestampMs, &slot,
			&p.Price, &p.Notional, &p.Side,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		p.Slot = int64(slot)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
