package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// EventFactStore writes classified events of finished reports into a flat
// analytics table and aggregates them by category.
type EventFactStore struct {
	conn *Conn
}

// NewEventFactStore creates a new EventFactStore.
func NewEventFactStore(conn *Conn) *EventFactStore {
	return &EventFactStore{conn: conn}
}

// CategoryTotal aggregates the events of one category.
type CategoryTotal struct {
	Category        domain.Category
	Events          uint64
	InflowUSD       decimal.Decimal
	OutflowUSD      decimal.Decimal
	GasUSD          decimal.Decimal
	RealizedGainUSD decimal.Decimal
	Underflows      uint64
}

// InsertFacts appends the events of one job in a single batch.
func (s *EventFactStore) InsertFacts(ctx context.Context, jobID string, events []*domain.ClassifiedEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("facts_insert", start, err) }(time.Now())

	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Category().IsValid() {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO event_facts (
			event_id, job_id, network, address, tx_hash, timestamp_ms, category,
			token_in, token_in_usd, token_out, token_out_usd,
			gas_fee_usd, gas_primary, realized_gain_usd, holding_days, long_term, underflow
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		tokenIn, inUSD := legFact(e.TokenIn)
		tokenOut, outUSD := legFact(e.TokenOut)
		var holding *int32
		if e.HoldingPeriodDays != nil {
			d := int32(*e.HoldingPeriodDays)
			holding = &d
		}

		err = batch.Append(
			e.EventID, jobID, e.Network, e.Address, e.TxHash, uint64(e.Timestamp), string(e.Category()),
			tokenIn, inUSD, tokenOut, outUSD,
			nullable(e.GasFeeUSD), boolByte(e.GasPrimary), nullable(e.RealizedGainUSD), holding,
			boolByte(e.LongTerm), boolByte(e.Underflow),
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

// CategoryTotals aggregates one job's facts by category, ordered by category.
func (s *EventFactStore) CategoryTotals(ctx context.Context, jobID string) (totals []CategoryTotal, err error) {
	defer func(start time.Time) { observe("facts_totals", start, err) }(time.Now())

	query := `
		SELECT
			category,
			count() AS events,
			sum(ifNull(token_in_usd, toDecimal128(0, 18))) AS inflow,
			sum(ifNull(token_out_usd, toDecimal128(0, 18))) AS outflow,
			sumIf(ifNull(gas_fee_usd, toDecimal128(0, 18)), gas_primary = 1) AS gas,
			sum(ifNull(realized_gain_usd, toDecimal128(0, 18))) AS gain,
			countIf(underflow = 1) AS underflows
		FROM event_facts FINAL
		WHERE job_id = ?
		GROUP BY category
		ORDER BY category
	`
	rows, err := s.conn.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query category totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t CategoryTotal
		var category string
		if err := rows.Scan(&category, &t.Events, &t.InflowUSD, &t.OutflowUSD, &t.GasUSD, &t.RealizedGainUSD, &t.Underflows); err != nil {
			return nil, fmt.Errorf("scan category total row: %w", err)
		}
		t.Category = domain.Category(category)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category total rows: %w", err)
	}
	return totals, nil
}

func legFact(l *domain.TokenLeg) (string, *decimal.Decimal) {
	if l == nil {
		return "", nil
	}
	return l.Token, nullable(l.ValueUSD)
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
