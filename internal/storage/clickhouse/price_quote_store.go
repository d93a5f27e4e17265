package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// PriceQuoteStore implements storage.PriceQuoteStore using ClickHouse.
type PriceQuoteStore struct {
	conn *Conn
}

// NewPriceQuoteStore creates a new PriceQuoteStore.
func NewPriceQuoteStore(conn *Conn) *PriceQuoteStore {
	return &PriceQuoteStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceQuoteStore = (*PriceQuoteStore)(nil)

// Insert adds a new quote. Returns ErrDuplicateKey if (network, token, timestamp) exists.
// MergeTree does not enforce keys, so existence is checked before the insert.
func (s *PriceQuoteStore) Insert(ctx context.Context, q *domain.PriceQuote) (err error) {
	defer func(start time.Time) { observe("quote_insert", start, err) }(time.Now())

	if q == nil || q.Token == "" || q.Network == "" || q.Timestamp < 0 {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, q.Network, q.Token, q.Timestamp)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_quotes (network, token, timestamp_ms, price_usd, source, created_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(
		q.Network, q.Token, uint64(q.Timestamp), q.PriceUSD, string(q.Source), uint64(q.CreatedAt),
	); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetNearest retrieves the quote closest to ts within ±toleranceMs; the earlier quote wins ties.
func (s *PriceQuoteStore) GetNearest(ctx context.Context, network, token string, ts, toleranceMs int64) (q *domain.PriceQuote, err error) {
	defer func(start time.Time) { observe("quote_nearest", start, err) }(time.Now())

	low := ts - toleranceMs
	if low < 0 {
		low = 0
	}
	query := `
		SELECT network, token, timestamp_ms, price_usd, source, created_at
		FROM price_quotes FINAL
		WHERE network = ? AND token = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY abs(toInt64(timestamp_ms) - ?) ASC, timestamp_ms ASC
		LIMIT 1
	`
	rows, err := s.conn.Query(ctx, query, network, token, uint64(low), uint64(ts+toleranceMs), ts)
	if err != nil {
		return nil, fmt.Errorf("query nearest quote: %w", err)
	}
	defer rows.Close()

	quotes, err := scanQuotes(rows)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, storage.ErrNotFound
	}
	return quotes[0], nil
}

// GetByTimeRange retrieves quotes within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PriceQuoteStore) GetByTimeRange(ctx context.Context, network, token string, start, end int64) (quotes []*domain.PriceQuote, err error) {
	defer func(begin time.Time) { observe("quote_range", begin, err) }(time.Now())

	query := `
		SELECT network, token, timestamp_ms, price_usd, source, created_at
		FROM price_quotes FINAL
		WHERE network = ? AND token = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`
	rows, err := s.conn.Query(ctx, query, network, token, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// exists checks if a quote with the given key exists.
func (s *PriceQuoteStore) exists(ctx context.Context, network, token string, ts int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_quotes
		WHERE network = ? AND token = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, network, token, uint64(ts)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanQuotes scans multiple rows.
func scanQuotes(rows chRows) ([]*domain.PriceQuote, error) {
	var quotes []*domain.PriceQuote

	for rows.Next() {
		var q domain.PriceQuote
		var ts, createdAt uint64
		var price decimal.Decimal
		var source string

		if err := rows.Scan(&q.Network, &q.Token, &ts, &price, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan price quote row: %w", err)
		}

		q.Timestamp = int64(ts)
		q.CreatedAt = int64(createdAt)
		q.PriceUSD = price
		q.Source = domain.PriceSource(source)
		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price quote rows: %w", err)
	}

	return quotes, nil
}
