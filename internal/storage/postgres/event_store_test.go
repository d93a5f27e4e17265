package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

func createTestEvent(id string, ts int64) *domain.ClassifiedEvent {
	tx := &domain.RawTransaction{Network: domain.NetworkEthereum, Hash: "0x" + id, BlockNumber: ts / 1000, Timestamp: ts}
	ev := domain.NewClassifiedEvent(domain.CategoryDisposal, tx, testAddr, 0)
	ev.EventID = id
	ev.TokenOut = &domain.TokenLeg{
		Token:       testToken,
		Symbol:      "UNI",
		Decimals:    18,
		Amount:      mustBig("123456789012345678901234567890"),
		ValueUSD:    decimal.NewNullDecimal(decimal.RequireFromString("42.5")),
		PriceSource: domain.PriceSourceCache,
	}
	ev.TokenIn = &domain.TokenLeg{Token: domain.NativeToken, Symbol: "ETH", Decimals: 18, Amount: big.NewInt(7)}
	ev.GasFeeWei = big.NewInt(21_000)
	ev.GasPrimary = true
	days := 12
	ev.HoldingPeriodDays = &days
	ev.RealizedGainUSD = decimal.NewNullDecimal(decimal.RequireFromString("-3.25"))
	return ev
}

func TestEventStore_InsertBulkAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ClassifiedEvent{
		createTestEvent("ev-2", 2000),
		createTestEvent("ev-1", 1000),
	}))

	events, err := store.GetByAddress(ctx, testAddr, domain.NetworkEthereum, 0, 5000)
	require.NoError(t, err)
	require.Len(t, events, 2)

	got := events[0]
	assert.Equal(t, "ev-1", got.EventID)
	assert.Equal(t, domain.CategoryDisposal, got.Category())
	require.NotNil(t, got.TokenOut)
	assert.Equal(t, "123456789012345678901234567890", got.TokenOut.Amount.String())
	assert.Equal(t, "42.5", got.TokenOut.ValueUSD.Decimal.String())
	require.NotNil(t, got.TokenIn)
	assert.False(t, got.TokenIn.ValueUSD.Valid)
	assert.Equal(t, int64(21_000), got.GasFeeWei.Int64())
	assert.False(t, got.GasFeeUSD.Valid)
	require.NotNil(t, got.HoldingPeriodDays)
	assert.Equal(t, 12, *got.HoldingPeriodDays)
	assert.Equal(t, "-3.25", got.RealizedGainUSD.Decimal.String())
	assert.Nil(t, got.UncoveredAmount)
}

func TestEventStore_BatchDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)
	require.NoError(t, store.InsertBulk(ctx, []*domain.ClassifiedEvent{createTestEvent("ev-1", 1000)}))

	err := store.InsertBulk(ctx, []*domain.ClassifiedEvent{
		createTestEvent("ev-3", 3000),
		createTestEvent("ev-1", 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	events, err := store.GetByAddress(ctx, testAddr, domain.NetworkEthereum, 0, 5000)
	require.NoError(t, err)
	assert.Len(t, events, 1, "failed batch must not leave partial rows")
}
