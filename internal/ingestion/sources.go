package ingestion

import (
	"context"

	"chain-tax-lab/internal/domain"
)

// FetchRequest selects the transactions of one address on one network.
type FetchRequest struct {
	Network   string
	Address   string
	FromBlock int64 // inclusive
	ToBlock   int64 // inclusive, 0 means latest
}

// TransactionSource provides raw transactions touching an address.
type TransactionSource interface {
	// Fetch returns transactions matching req.
	// Transactions may be unordered; Manager enforces deterministic ordering.
	Fetch(ctx context.Context, req FetchRequest) ([]*domain.RawTransaction, error)
}

// inRange reports whether block lies within req's block range.
func (req FetchRequest) inRange(block int64) bool {
	if block < req.FromBlock {
		return false
	}
	return req.ToBlock <= 0 || block <= req.ToBlock
}
