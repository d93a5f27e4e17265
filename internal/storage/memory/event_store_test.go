package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

func newEvent(id string, ts int64, idx int) *domain.ClassifiedEvent {
	tx := &domain.RawTransaction{Network: domain.NetworkEthereum, Hash: "0xtx", Timestamp: ts, BlockNumber: ts / 1000}
	e := domain.NewClassifiedEvent(domain.CategoryDisposal, tx, "0xuser", idx)
	e.EventID = id
	e.TokenOut = &domain.TokenLeg{Token: "0xtoken", Amount: big.NewInt(5)}
	return e
}

func TestEventStore_InsertBulkAndGet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.ClassifiedEvent{
		newEvent("e2", 2000, 0),
		newEvent("e1", 1000, 0),
		newEvent("e3", 2000, 1),
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	events, err := store.GetByAddress(ctx, "0xuser", domain.NetworkEthereum, 0, 5000)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	want := []string{"e1", "e2", "e3"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.EventID != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, e.EventID, want[i])
		}
		if e.Category() != domain.CategoryDisposal {
			t.Errorf("category lost: %s", e.Category())
		}
	}

	// stored legs are copies
	events[0].TokenOut.Amount.SetInt64(99)
	again, _ := store.GetByAddress(ctx, "0xuser", domain.NetworkEthereum, 0, 1500)
	if again[0].TokenOut.Amount.Int64() != 5 {
		t.Error("mutating a returned event must not affect the store")
	}
}

func TestEventStore_BatchDuplicate(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.ClassifiedEvent{newEvent("e1", 1000, 0), newEvent("e1", 1000, 0)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	events, _ := store.GetByAddress(ctx, "0xuser", domain.NetworkEthereum, 0, 5000)
	if len(events) != 0 {
		t.Errorf("Batch must not be partially inserted, got %d events", len(events))
	}
}
