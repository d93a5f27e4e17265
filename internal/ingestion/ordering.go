package ingestion

import (
	"errors"
	"sort"

	"chain-tax-lab/internal/domain"
)

// ErrInvalidOrdering is returned when transactions are not properly ordered.
var ErrInvalidOrdering = errors.New("transactions are not in deterministic order")

// SortTransactions orders transactions by (block ASC, hash ASC).
// This provides deterministic ordering based on chain order.
func SortTransactions(txs []*domain.RawTransaction) {
	sort.Slice(txs, func(i, j int) bool {
		return compareTransactions(txs[i], txs[j]) < 0
	})
}

// ValidateTransactionOrdering checks that transactions are strictly ordered.
// A repeated hash is reported as invalid ordering too.
func ValidateTransactionOrdering(txs []*domain.RawTransaction) error {
	for i := 1; i < len(txs); i++ {
		if compareTransactions(txs[i-1], txs[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareTransactions returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block ASC, hash ASC)
func compareTransactions(a, b *domain.RawTransaction) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.Hash != b.Hash {
		if a.Hash < b.Hash {
			return -1
		}
		return 1
	}
	return 0
}
