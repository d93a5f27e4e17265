package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chain-tax-lab/internal/domain"
)

// Manager collects transactions from several sources into one deterministic sequence.
// Sources may overlap; a transaction seen in more than one is kept once, first source wins.
type Manager struct {
	sources []TransactionSource
	logger  zerolog.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Sources []TransactionSource
	Logger  *zerolog.Logger
}

// NewManager creates a new ingestion manager over the provided sources.
func NewManager(opts ManagerOptions) *Manager {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Manager{
		sources: opts.Sources,
		logger:  logger.With().Str("component", "ingestion").Logger(),
	}
}

// Collect fetches from every source, drops duplicate hashes and returns the
// transactions ordered by (block, hash).
func (m *Manager) Collect(ctx context.Context, req FetchRequest) ([]*domain.RawTransaction, error) {
	seen := make(map[string]bool)
	var out []*domain.RawTransaction

	for i, src := range m.sources {
		txs, err := src.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch source %d: %w", i, err)
		}
		added := 0
		for _, tx := range txs {
			if tx == nil || seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			out = append(out, tx)
			added++
		}
		m.logger.Debug().Int("source", i).Int("fetched", len(txs)).Int("added", added).Msg("source fetched")
	}

	// Enforce deterministic ordering
	SortTransactions(out)
	if err := ValidateTransactionOrdering(out); err != nil {
		return nil, err
	}
	return out, nil
}
