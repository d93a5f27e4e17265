package storage

import (
	"context"

	"chain-tax-lab/internal/domain"
)

// LotStore provides access to cost_lots and lot_consumptions storage.
// A LotStore instance is one ledger: lots of different reports live in different stores.
type LotStore interface {
	// Insert adds a new lot. Returns ErrDuplicateKey if lot_id exists.
	Insert(ctx context.Context, lot *domain.CostLot) error

	// GetOpenLots retrieves lots of (address, token) with remaining > 0,
	// ordered by acquired_at ASC, lot_id ASC.
	GetOpenLots(ctx context.Context, address, token string) ([]*domain.CostLot, error)

	// GetByAddress retrieves all lots of an address, open or disposed,
	// ordered by acquired_at ASC, lot_id ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.CostLot, error)

	// ApplyConsumptions decrements lots atomically. Either every consumption is applied
	// or none is. Returns ErrNotFound for an unknown lot and ErrInvalidInput when an
	// amount is not positive or exceeds the lot's remaining amount.
	// A lot reaching zero is marked disposed at the consumption's time and tx.
	ApplyConsumptions(ctx context.Context, consumptions []domain.LotConsumption) error

	// GetConsumptions retrieves the consumption history of an address's lots,
	// ordered by timestamp ASC.
	GetConsumptions(ctx context.Context, address string) ([]*domain.LotConsumption, error)
}

// PriceQuoteStore provides access to price_quotes storage.
// Quotes are append-only.
type PriceQuoteStore interface {
	// Insert adds a new quote. Returns ErrDuplicateKey if (network, token, timestamp) exists.
	Insert(ctx context.Context, q *domain.PriceQuote) error

	// GetNearest retrieves the quote closest to ts within ±toleranceMs.
	// Returns ErrNotFound if no quote is within the window.
	GetNearest(ctx context.Context, network, token string, ts, toleranceMs int64) (*domain.PriceQuote, error)

	// GetByTimeRange retrieves quotes within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, network, token string, start, end int64) ([]*domain.PriceQuote, error)
}

// EventStore provides access to classified_events storage.
type EventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.ClassifiedEvent) error

	// GetByAddress retrieves events of an address on a network within [start, end] (inclusive),
	// ordered by timestamp ASC, block ASC, tx hash ASC, index ASC.
	GetByAddress(ctx context.Context, address, network string, start, end int64) ([]*domain.ClassifiedEvent, error)
}

// JobStore provides access to report_jobs storage.
type JobStore interface {
	// Insert adds a new job. Returns ErrDuplicateKey if job_id exists.
	Insert(ctx context.Context, job *domain.ReportJob) error

	// Update replaces a job's mutable fields. Returns ErrNotFound if job_id does not exist.
	Update(ctx context.Context, job *domain.ReportJob) error

	// GetByID retrieves a job. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, jobID string) (*domain.ReportJob, error)

	// ListByAddress retrieves jobs of an address, ordered by created_at DESC.
	ListByAddress(ctx context.Context, address string) ([]*domain.ReportJob, error)
}
