// Package stub provides in-memory transaction sources for tests.
package stub

import (
	"context"
	"strings"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/ingestion"
)

// TransactionSource returns fixed in-memory transactions for testing.
// Transactions can be intentionally unordered to test sorting.
type TransactionSource struct {
	txs   []*domain.RawTransaction
	Err   error
	Calls int
}

// NewTransactionSource creates a new stub source with the given transactions.
func NewTransactionSource(txs []*domain.RawTransaction) *TransactionSource {
	return &TransactionSource{txs: txs}
}

// Fetch returns copies of the transactions on req.Network within the block range
// sent from or to req.Address, or carrying logs.
func (s *TransactionSource) Fetch(_ context.Context, req ingestion.FetchRequest) ([]*domain.RawTransaction, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	var result []*domain.RawTransaction
	for _, tx := range s.txs {
		if tx.Network != req.Network || tx.BlockNumber < req.FromBlock {
			continue
		}
		if req.ToBlock > 0 && tx.BlockNumber > req.ToBlock {
			continue
		}
		if !strings.EqualFold(tx.From, req.Address) && !strings.EqualFold(tx.To, req.Address) && len(tx.Logs) == 0 {
			continue
		}
		c := *tx
		result = append(result, &c)
	}
	return result, nil
}

var _ ingestion.TransactionSource = (*TransactionSource)(nil)
