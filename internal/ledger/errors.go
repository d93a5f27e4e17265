package ledger

import "errors"

// Ledger errors
var (
	// ErrLedgerInconsistent is returned when stored lots contradict the ledger invariants.
	// The disposal that detected it is rejected before any lot is mutated.
	ErrLedgerInconsistent = errors.New("ledger inconsistent")

	// ErrInvalidAmount is returned for non-positive amounts or negative USD values.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNoPriceLookup is returned by UnrealizedPositions when the ledger has no price source.
	ErrNoPriceLookup = errors.New("ledger has no price lookup")
)
