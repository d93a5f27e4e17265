package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
// Token legs are stored as JSONB documents.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.ClassifiedEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("event_insert_bulk", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO classified_events (
			event_id, tx_hash, event_index, network, address, block_number, timestamp_ms, category,
			token_in, token_out, gas_fee_wei, gas_fee_usd, gas_primary, protocol, note,
			attributed_cost_usd, cost_basis_usd, proceeds_usd, realized_gain_usd,
			holding_period_days, long_term, underflow, uncovered_amount, error
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11::numeric, $12::numeric, $13, $14, $15,
			$16::numeric, $17::numeric, $18::numeric, $19::numeric,
			$20, $21, $22, $23::numeric, $24
		)
	`

	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Category().IsValid() {
			return storage.ErrInvalidInput
		}
		tokenIn, err := marshalLeg(e.TokenIn)
		if err != nil {
			return err
		}
		tokenOut, err := marshalLeg(e.TokenOut)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, query,
			e.EventID, e.TxHash, e.Index, e.Network, e.Address, e.BlockNumber, e.Timestamp, string(e.Category()),
			tokenIn, tokenOut, bigText(e.GasFeeWei), nullDecimalText(e.GasFeeUSD), e.GasPrimary, e.Protocol, e.Note,
			nullDecimalText(e.AttributedCostUSD), nullDecimalText(e.CostBasisUSD),
			nullDecimalText(e.ProceedsUSD), nullDecimalText(e.RealizedGainUSD),
			e.HoldingPeriodDays, e.LongTerm, e.Underflow, nullBigText(e.UncoveredAmount), e.Error,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert classified event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByAddress retrieves events of an address on a network within [start, end] (inclusive).
func (s *EventStore) GetByAddress(ctx context.Context, address, network string, start, end int64) (events []*domain.ClassifiedEvent, err error) {
	defer func(begin time.Time) { observe("event_by_address", begin, err) }(time.Now())

	query := `
		SELECT
			event_id, tx_hash, event_index, network, address, block_number, timestamp_ms, category,
			token_in, token_out, gas_fee_wei::text, gas_fee_usd::text, gas_primary, protocol, note,
			attributed_cost_usd::text, cost_basis_usd::text, proceeds_usd::text, realized_gain_usd::text,
			holding_period_days, long_term, underflow, uncovered_amount::text, error
		FROM classified_events
		WHERE address = $1 AND network = $2 AND timestamp_ms >= $3 AND timestamp_ms <= $4
		ORDER BY timestamp_ms ASC, block_number ASC, tx_hash ASC, event_index ASC
	`
	rows, err := s.pool.Query(ctx, query, address, network, start, end)
	if err != nil {
		return nil, fmt.Errorf("get classified events by address: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classified event rows: %w", err)
	}
	return events, nil
}

func scanEvent(rows pgx.Rows) (*domain.ClassifiedEvent, error) {
	var (
		eventID, txHash, network, address, category string
		index                                       int
		block, ts                                   int64
		tokenIn, tokenOut                           []byte
		gasWei                                      string
		gasUSD, attributed, basis, proceeds, gain   *string
		uncovered                                   *string
		gasPrimary, longTerm, underflow             bool
		protocol, note, errText                     string
		holding                                     *int
	)
	err := rows.Scan(
		&eventID, &txHash, &index, &network, &address, &block, &ts, &category,
		&tokenIn, &tokenOut, &gasWei, &gasUSD, &gasPrimary, &protocol, &note,
		&attributed, &basis, &proceeds, &gain,
		&holding, &longTerm, &underflow, &uncovered, &errText,
	)
	if err != nil {
		return nil, fmt.Errorf("scan classified event row: %w", err)
	}

	e := domain.RestoreClassifiedEvent(domain.Category(category))
	e.EventID = eventID
	e.TxHash = txHash
	e.Index = index
	e.Network = network
	e.Address = address
	e.BlockNumber = block
	e.Timestamp = ts
	e.GasPrimary = gasPrimary
	e.Protocol = protocol
	e.Note = note
	e.HoldingPeriodDays = holding
	e.LongTerm = longTerm
	e.Underflow = underflow
	e.Error = errText

	if e.TokenIn, err = unmarshalLeg(tokenIn); err != nil {
		return nil, err
	}
	if e.TokenOut, err = unmarshalLeg(tokenOut); err != nil {
		return nil, err
	}
	if e.GasFeeWei, err = parseBig(gasWei); err != nil {
		return nil, err
	}
	if e.UncoveredAmount, err = parseNullBig(uncovered); err != nil {
		return nil, err
	}

	nullable := []struct {
		dst *decimal.NullDecimal
		src *string
	}{
		{&e.GasFeeUSD, gasUSD},
		{&e.AttributedCostUSD, attributed},
		{&e.CostBasisUSD, basis},
		{&e.ProceedsUSD, proceeds},
		{&e.RealizedGainUSD, gain},
	}
	for _, f := range nullable {
		if *f.dst, err = parseNullDecimal(f.src); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// legDocument is the JSONB shape of a token leg.
type legDocument struct {
	Token       string              `json:"token"`
	Symbol      string              `json:"symbol,omitempty"`
	Decimals    int                 `json:"decimals"`
	Amount      string              `json:"amount"`
	ValueUSD    decimal.NullDecimal `json:"value_usd"`
	PriceSource domain.PriceSource  `json:"price_source,omitempty"`
}

func marshalLeg(l *domain.TokenLeg) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	data, err := json.Marshal(legDocument{
		Token:       l.Token,
		Symbol:      l.Symbol,
		Decimals:    l.Decimals,
		Amount:      bigText(l.Amount),
		ValueUSD:    l.ValueUSD,
		PriceSource: l.PriceSource,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token leg: %w", err)
	}
	return data, nil
}

func unmarshalLeg(data []byte) (*domain.TokenLeg, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc legDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal token leg: %w", err)
	}
	amount, err := parseBig(doc.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.TokenLeg{
		Token:       doc.Token,
		Symbol:      doc.Symbol,
		Decimals:    doc.Decimals,
		Amount:      amount,
		ValueUSD:    doc.ValueUSD,
		PriceSource: doc.PriceSource,
	}, nil
}
