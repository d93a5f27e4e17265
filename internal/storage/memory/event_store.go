package memory

import (
	"context"
	"sort"
	"sync"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClassifiedEvent // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.ClassifiedEvent),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.ClassifiedEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Category().IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		s.data[e.EventID] = cloneEvent(e)
	}
	return nil
}

// GetByAddress retrieves events of an address within [start, end] (inclusive).
func (s *EventStore) GetByAddress(_ context.Context, address, network string, start, end int64) ([]*domain.ClassifiedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClassifiedEvent
	for _, e := range s.data {
		if e.Address == address && e.Network == network && e.Timestamp >= start && e.Timestamp <= end {
			result = append(result, cloneEvent(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Less(result[j])
	})
	return result, nil
}

func cloneEvent(e *domain.ClassifiedEvent) *domain.ClassifiedEvent {
	c := *e
	c.TokenIn = e.TokenIn.Clone()
	c.TokenOut = e.TokenOut.Clone()
	return &c
}

var _ storage.EventStore = (*EventStore)(nil)
