package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// LotStore is an in-memory implementation of storage.LotStore.
type LotStore struct {
	mu           sync.RWMutex
	lots         map[string]*domain.CostLot // keyed by lot_id
	consumptions []*domain.LotConsumption
}

// NewLotStore creates a new in-memory lot store.
func NewLotStore() *LotStore {
	return &LotStore{
		lots: make(map[string]*domain.CostLot),
	}
}

// Insert adds a new lot. Returns ErrDuplicateKey if exists.
func (s *LotStore) Insert(_ context.Context, lot *domain.CostLot) error {
	if err := validateLot(lot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lots[lot.LotID]; exists {
		return storage.ErrDuplicateKey
	}

	s.lots[lot.LotID] = lot.Clone()
	return nil
}

// GetOpenLots retrieves open lots of (address, token) in FIFO order.
func (s *LotStore) GetOpenLots(_ context.Context, address, token string) ([]*domain.CostLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CostLot
	for _, lot := range s.lots {
		if lot.Address == address && lot.Token == token && lot.RemainingAmount.Sign() > 0 {
			result = append(result, lot.Clone())
		}
	}
	sortFIFO(result)
	return result, nil
}

// GetByAddress retrieves all lots of an address in FIFO order.
func (s *LotStore) GetByAddress(_ context.Context, address string) ([]*domain.CostLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CostLot
	for _, lot := range s.lots {
		if lot.Address == address {
			result = append(result, lot.Clone())
		}
	}
	sortFIFO(result)
	return result, nil
}

// ApplyConsumptions decrements lots atomically.
func (s *LotStore) ApplyConsumptions(_ context.Context, consumptions []domain.LotConsumption) error {
	if len(consumptions) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate against running remaining amounts
	remaining := make(map[string]*big.Int, len(consumptions))
	for _, c := range consumptions {
		lot, ok := s.lots[c.LotID]
		if !ok {
			return fmt.Errorf("lot %s: %w", c.LotID, storage.ErrNotFound)
		}
		if c.Amount == nil || c.Amount.Sign() <= 0 {
			return fmt.Errorf("lot %s: non-positive consumption: %w", c.LotID, storage.ErrInvalidInput)
		}
		left, seen := remaining[c.LotID]
		if !seen {
			left = new(big.Int).Set(lot.RemainingAmount)
			remaining[c.LotID] = left
		}
		if c.Amount.Cmp(left) > 0 {
			return fmt.Errorf("lot %s: consumption %s exceeds remaining %s: %w",
				c.LotID, c.Amount, left, storage.ErrInvalidInput)
		}
		left.Sub(left, c.Amount)
	}

	// Second pass: apply all
	for _, c := range consumptions {
		lot := s.lots[c.LotID]
		lot.RemainingAmount = new(big.Int).Sub(lot.RemainingAmount, c.Amount)
		if lot.RemainingAmount.Sign() == 0 {
			lot.Disposed = true
			lot.DisposedAt = c.Timestamp
			lot.DisposedTx = c.TxHash
		}
		rec := c
		rec.Amount = new(big.Int).Set(c.Amount)
		s.consumptions = append(s.consumptions, &rec)
	}

	return nil
}

// GetConsumptions retrieves the consumption history of an address's lots.
func (s *LotStore) GetConsumptions(_ context.Context, address string) ([]*domain.LotConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LotConsumption
	for _, c := range s.consumptions {
		if lot, ok := s.lots[c.LotID]; ok && lot.Address == address {
			rec := *c
			rec.Amount = new(big.Int).Set(c.Amount)
			result = append(result, &rec)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

func validateLot(lot *domain.CostLot) error {
	if lot == nil || lot.LotID == "" || lot.Address == "" || lot.Token == "" {
		return storage.ErrInvalidInput
	}
	if lot.OriginalAmount == nil || lot.RemainingAmount == nil {
		return storage.ErrInvalidInput
	}
	if lot.OriginalAmount.Sign() <= 0 || lot.RemainingAmount.Sign() < 0 ||
		lot.RemainingAmount.Cmp(lot.OriginalAmount) > 0 {
		return storage.ErrInvalidInput
	}
	return nil
}

func sortFIFO(lots []*domain.CostLot) {
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].AcquiredAt != lots[j].AcquiredAt {
			return lots[i].AcquiredAt < lots[j].AcquiredAt
		}
		return lots[i].LotID < lots[j].LotID
	})
}

var _ storage.LotStore = (*LotStore)(nil)
