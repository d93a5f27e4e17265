package clickhouse

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

func factEvent(id string, category domain.Category, ts int64) *domain.ClassifiedEvent {
	e := domain.RestoreClassifiedEvent(category)
	e.EventID = id
	e.TxHash = "0x" + id
	e.Network = "ethereum"
	e.Address = "0xabc"
	e.Timestamp = ts
	return e
}

func usd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestEventFactStore_CategoryTotals(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventFactStore(conn)
	ctx := context.Background()

	swap := factEvent("e1", domain.CategoryDisposal, 1000)
	swap.TokenOut = &domain.TokenLeg{Token: testToken, Amount: big.NewInt(1), ValueUSD: usd("4500")}
	swap.TokenIn = &domain.TokenLeg{Token: "0xusdc", Amount: big.NewInt(4500), ValueUSD: usd("4500")}
	swap.GasFeeUSD = usd("7.5")
	swap.GasPrimary = true
	swap.RealizedGainUSD = usd("1250")
	days := 49
	swap.HoldingPeriodDays = &days

	second := factEvent("e2", domain.CategoryDisposal, 2000)
	second.TokenOut = &domain.TokenLeg{Token: testToken, Amount: big.NewInt(1), ValueUSD: usd("100")}
	second.GasFeeUSD = usd("7.5")
	second.RealizedGainUSD = usd("-20")
	second.Underflow = true

	drop := factEvent("e3", domain.CategoryAirdrop, 3000)
	drop.TokenIn = &domain.TokenLeg{Token: "0xuni", Amount: big.NewInt(400), ValueUSD: usd("2000")}

	require.NoError(t, store.InsertFacts(ctx, "job-1", []*domain.ClassifiedEvent{swap, second, drop}))

	totals, err := store.CategoryTotals(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, domain.CategoryAirdrop, totals[0].Category)
	assert.Equal(t, uint64(1), totals[0].Events)
	assert.True(t, decimal.NewFromInt(2000).Equal(totals[0].InflowUSD))

	d := totals[1]
	assert.Equal(t, domain.CategoryDisposal, d.Category)
	assert.Equal(t, uint64(2), d.Events)
	assert.True(t, decimal.NewFromInt(4600).Equal(d.OutflowUSD))
	assert.True(t, decimal.RequireFromString("7.5").Equal(d.GasUSD), "only the primary event carries gas")
	assert.True(t, decimal.NewFromInt(1230).Equal(d.RealizedGainUSD))
	assert.Equal(t, uint64(1), d.Underflows)

	other, err := store.CategoryTotals(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEventFactStore_InsertEmpty(t *testing.T) {
	store := NewEventFactStore(nil)
	assert.NoError(t, store.InsertFacts(context.Background(), "job", nil))
}

func TestEventFactStore_RejectsUnidentifiedEvent(t *testing.T) {
	store := NewEventFactStore(nil)
	e := factEvent("", domain.CategoryTransfer, 1)
	err := store.InsertFacts(context.Background(), "job", []*domain.ClassifiedEvent{e})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
