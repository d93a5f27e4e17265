package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/lookup"
	"chain-tax-lab/internal/storage"
)

// PriceQuoteStore is an in-memory implementation of storage.PriceQuoteStore.
type PriceQuoteStore struct {
	mu     sync.RWMutex
	series map[string][]*domain.PriceQuote // keyed by network|token, ordered by timestamp ASC
}

// NewPriceQuoteStore creates a new in-memory price quote store.
func NewPriceQuoteStore() *PriceQuoteStore {
	return &PriceQuoteStore{
		series: make(map[string][]*domain.PriceQuote),
	}
}

func quoteSeriesKey(network, token string) string {
	return fmt.Sprintf("%s|%s", network, token)
}

// Insert adds a new quote. Returns ErrDuplicateKey if (network, token, timestamp) exists.
func (s *PriceQuoteStore) Insert(_ context.Context, q *domain.PriceQuote) error {
	if q == nil || q.Network == "" || q.Token == "" {
		return storage.ErrInvalidInput
	}

	key := quoteSeriesKey(q.Network, q.Token)

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[key]
	i := sort.Search(len(series), func(i int) bool { return series[i].Timestamp >= q.Timestamp })
	if i < len(series) && series[i].Timestamp == q.Timestamp {
		return storage.ErrDuplicateKey
	}

	copy := *q
	series = append(series, nil)
	for j := len(series) - 1; j > i; j-- {
		series[j] = series[j-1]
	}
	series[i] = &copy
	s.series[key] = series
	return nil
}

// GetNearest retrieves the quote closest to ts within ±toleranceMs.
func (s *PriceQuoteStore) GetNearest(_ context.Context, network, token string, ts, toleranceMs int64) (*domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, err := lookup.NearestQuote(ts, toleranceMs, s.series[quoteSeriesKey(network, token)])
	if err != nil {
		if errors.Is(err, lookup.ErrNoPriceData) || errors.Is(err, lookup.ErrOutOfWindow) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	copy := *q
	return &copy, nil
}

// GetByTimeRange retrieves quotes within [start, end] (inclusive).
func (s *PriceQuoteStore) GetByTimeRange(_ context.Context, network, token string, start, end int64) ([]*domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceQuote
	for _, q := range s.series[quoteSeriesKey(network, token)] {
		if q.Timestamp >= start && q.Timestamp <= end {
			copy := *q
			result = append(result, &copy)
		}
	}
	return result, nil
}

var _ storage.PriceQuoteStore = (*PriceQuoteStore)(nil)
