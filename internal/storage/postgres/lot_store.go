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

// LotStore implements storage.LotStore using PostgreSQL.
// Every row is scoped by ledger id, so one table holds many independent ledgers.
type LotStore struct {
	pool     *Pool
	ledgerID string
}

// NewLotStore creates a LotStore for one ledger.
func NewLotStore(pool *Pool, ledgerID string) *LotStore {
	return &LotStore{pool: pool, ledgerID: ledgerID}
}

// Compile-time interface check.
var _ storage.LotStore = (*LotStore)(nil)

const lotColumns = `
	lot_id, address, token, symbol, decimals, acquired_at, acquired_tx,
	original_amount::text, remaining_amount::text, cost_basis_usd::text,
	disposed, disposed_at, disposed_tx`

// Insert adds a new lot. Returns ErrDuplicateKey if lot_id exists in this ledger.
func (s *LotStore) Insert(ctx context.Context, lot *domain.CostLot) (err error) {
	defer func(start time.Time) { observe("lot_insert", start, err) }(time.Now())

	if lot == nil || lot.LotID == "" || lot.OriginalAmount == nil || lot.RemainingAmount == nil ||
		lot.OriginalAmount.Sign() <= 0 || lot.RemainingAmount.Sign() < 0 ||
		lot.RemainingAmount.Cmp(lot.OriginalAmount) > 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cost_lots (
			ledger_id, lot_id, address, token, symbol, decimals, acquired_at, acquired_tx,
			original_amount, remaining_amount, cost_basis_usd,
			disposed, disposed_at, disposed_tx
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::numeric, $10::numeric, $11::numeric,
			$12, $13, $14
		)
	`
	_, err = s.pool.Exec(ctx, query,
		s.ledgerID, lot.LotID, lot.Address, lot.Token, lot.Symbol, lot.Decimals, lot.AcquiredAt, lot.AcquiredTx,
		bigText(lot.OriginalAmount), bigText(lot.RemainingAmount), lot.CostBasisUSD.String(),
		lot.Disposed, lot.DisposedAt, lot.DisposedTx,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert cost lot: %w", err)
	}
	return nil
}

// GetOpenLots retrieves open lots of (address, token) in FIFO order.
func (s *LotStore) GetOpenLots(ctx context.Context, address, token string) (lots []*domain.CostLot, err error) {
	defer func(start time.Time) { observe("lot_open", start, err) }(time.Now())

	query := `SELECT ` + lotColumns + `
		FROM cost_lots
		WHERE ledger_id = $1 AND address = $2 AND token = $3 AND remaining_amount > 0
		ORDER BY acquired_at ASC, lot_id ASC
	`
	rows, err := s.pool.Query(ctx, query, s.ledgerID, address, token)
	if err != nil {
		return nil, fmt.Errorf("get open lots: %w", err)
	}
	defer rows.Close()

	return scanLots(rows)
}

// GetByAddress retrieves every lot of an address in FIFO order.
func (s *LotStore) GetByAddress(ctx context.Context, address string) (lots []*domain.CostLot, err error) {
	defer func(start time.Time) { observe("lot_by_address", start, err) }(time.Now())

	query := `SELECT ` + lotColumns + `
		FROM cost_lots
		WHERE ledger_id = $1 AND address = $2
		ORDER BY acquired_at ASC, lot_id ASC
	`
	rows, err := s.pool.Query(ctx, query, s.ledgerID, address)
	if err != nil {
		return nil, fmt.Errorf("get lots by address: %w", err)
	}
	defer rows.Close()

	return scanLots(rows)
}

// ApplyConsumptions decrements lots in one transaction.
// A guarded UPDATE rejects any consumption exceeding the lot's remaining amount,
// which rolls the whole batch back.
func (s *LotStore) ApplyConsumptions(ctx context.Context, consumptions []domain.LotConsumption) (err error) {
	if len(consumptions) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("lot_consume", start, err) }(time.Now())

	for _, c := range consumptions {
		if c.Amount == nil || c.Amount.Sign() <= 0 {
			return fmt.Errorf("lot %s: non-positive consumption: %w", c.LotID, storage.ErrInvalidInput)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	update := `
		UPDATE cost_lots SET
			remaining_amount = remaining_amount - $3::numeric,
			disposed = (remaining_amount - $3::numeric = 0),
			disposed_at = CASE WHEN remaining_amount - $3::numeric = 0 THEN $4 ELSE disposed_at END,
			disposed_tx = CASE WHEN remaining_amount - $3::numeric = 0 THEN $5 ELSE disposed_tx END
		WHERE ledger_id = $1 AND lot_id = $2 AND remaining_amount >= $3::numeric
	`
	insert := `
		INSERT INTO lot_consumptions (ledger_id, lot_id, tx_hash, timestamp_ms, amount)
		VALUES ($1, $2, $3, $4, $5::numeric)
	`

	for _, c := range consumptions {
		tag, err := tx.Exec(ctx, update, s.ledgerID, c.LotID, c.Amount.String(), c.Timestamp, c.TxHash)
		if err != nil {
			return fmt.Errorf("consume lot %s: %w", c.LotID, err)
		}
		if tag.RowsAffected() == 0 {
			return s.rejectReason(ctx, tx, c)
		}
		if _, err := tx.Exec(ctx, insert, s.ledgerID, c.LotID, c.TxHash, c.Timestamp, c.Amount.String()); err != nil {
			return fmt.Errorf("record consumption of lot %s: %w", c.LotID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rejectReason tells a missing lot apart from an over-consumption.
func (s *LotStore) rejectReason(ctx context.Context, tx pgx.Tx, c domain.LotConsumption) error {
	var remaining string
	err := tx.QueryRow(ctx,
		`SELECT remaining_amount::text FROM cost_lots WHERE ledger_id = $1 AND lot_id = $2`,
		s.ledgerID, c.LotID,
	).Scan(&remaining)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("lot %s: %w", c.LotID, storage.ErrNotFound)
		}
		return fmt.Errorf("check lot %s: %w", c.LotID, err)
	}
	return fmt.Errorf("lot %s: consumption %s exceeds remaining %s: %w",
		c.LotID, c.Amount, remaining, storage.ErrInvalidInput)
}

// GetConsumptions retrieves the consumption history of an address's lots.
func (s *LotStore) GetConsumptions(ctx context.Context, address string) (out []*domain.LotConsumption, err error) {
	defer func(start time.Time) { observe("lot_consumptions", start, err) }(time.Now())

	query := `
		SELECT c.lot_id, c.tx_hash, c.timestamp_ms, c.amount::text
		FROM lot_consumptions c
		JOIN cost_lots l ON l.ledger_id = c.ledger_id AND l.lot_id = c.lot_id
		WHERE c.ledger_id = $1 AND l.address = $2
		ORDER BY c.timestamp_ms ASC, c.id ASC
	`
	rows, err := s.pool.Query(ctx, query, s.ledgerID, address)
	if err != nil {
		return nil, fmt.Errorf("get consumptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.LotConsumption
		var amount string
		if err := rows.Scan(&c.LotID, &c.TxHash, &c.Timestamp, &amount); err != nil {
			return nil, fmt.Errorf("scan consumption row: %w", err)
		}
		if c.Amount, err = parseBig(amount); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumption rows: %w", err)
	}
	return out, nil
}

// scanLots scans multiple rows into cost lots.
func scanLots(rows pgx.Rows) ([]*domain.CostLot, error) {
	var lots []*domain.CostLot

	for rows.Next() {
		var l domain.CostLot
		var original, remaining, basis string

		err := rows.Scan(
			&l.LotID, &l.Address, &l.Token, &l.Symbol, &l.Decimals, &l.AcquiredAt, &l.AcquiredTx,
			&original, &remaining, &basis,
			&l.Disposed, &l.DisposedAt, &l.DisposedTx,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cost lot row: %w", err)
		}
		if l.OriginalAmount, err = parseBig(original); err != nil {
			return nil, err
		}
		if l.RemainingAmount, err = parseBig(remaining); err != nil {
			return nil, err
		}
		if l.CostBasisUSD, err = decimal.NewFromString(basis); err != nil {
			return nil, fmt.Errorf("parse cost basis %q: %w", basis, err)
		}

		lots = append(lots, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost lot rows: %w", err)
	}

	return lots, nil
}
