package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// PriceQuoteStore implements storage.PriceQuoteStore using PostgreSQL.
type PriceQuoteStore struct {
	pool *Pool
}

// NewPriceQuoteStore creates a new PriceQuoteStore.
func NewPriceQuoteStore(pool *Pool) *PriceQuoteStore {
	return &PriceQuoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceQuoteStore = (*PriceQuoteStore)(nil)

// Insert adds a new quote. Returns ErrDuplicateKey if (network, token, timestamp) exists.
func (s *PriceQuoteStore) Insert(ctx context.Context, q *domain.PriceQuote) (err error) {
	defer func(start time.Time) { observe("quote_insert", start, err) }(time.Now())

	if q == nil || q.Token == "" || q.Network == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO price_quotes (network, token, timestamp_ms, price_usd, source, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		q.Network, q.Token, q.Timestamp, q.PriceUSD.String(), string(q.Source), q.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert price quote: %w", err)
	}
	return nil
}

// GetNearest retrieves the quote closest to ts within ±toleranceMs; the earlier quote wins ties.
func (s *PriceQuoteStore) GetNearest(ctx context.Context, network, token string, ts, toleranceMs int64) (q *domain.PriceQuote, err error) {
	defer func(start time.Time) { observe("quote_nearest", start, err) }(time.Now())

	query := `
		SELECT network, token, timestamp_ms, price_usd::text, source, created_at
		FROM price_quotes
		WHERE network = $1 AND token = $2 AND timestamp_ms BETWEEN $3 AND $4
		ORDER BY abs(timestamp_ms - $5) ASC, timestamp_ms ASC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, network, token, ts-toleranceMs, ts+toleranceMs, ts)
	q, err = scanQuote(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get nearest price quote: %w", err)
	}
	return q, nil
}

// GetByTimeRange retrieves quotes within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PriceQuoteStore) GetByTimeRange(ctx context.Context, network, token string, start, end int64) (quotes []*domain.PriceQuote, err error) {
	defer func(begin time.Time) { observe("quote_range", begin, err) }(time.Now())

	query := `
		SELECT network, token, timestamp_ms, price_usd::text, source, created_at
		FROM price_quotes
		WHERE network = $1 AND token = $2 AND timestamp_ms >= $3 AND timestamp_ms <= $4
		ORDER BY timestamp_ms ASC
	`
	rows, err := s.pool.Query(ctx, query, network, token, start, end)
	if err != nil {
		return nil, fmt.Errorf("get price quotes by time range: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price quote rows: %w", err)
	}
	return quotes, nil
}

func scanQuote(row pgx.Row) (*domain.PriceQuote, error) {
	var q domain.PriceQuote
	var price, source string
	if err := row.Scan(&q.Network, &q.Token, &q.Timestamp, &price, &source, &q.CreatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	q.PriceUSD = p
	q.Source = domain.PriceSource(source)
	return &q, nil
}
