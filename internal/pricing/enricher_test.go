package pricing

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/domain"
)

func newEvent(ts int64, in, out *domain.TokenLeg, gasWei int64) *domain.ClassifiedEvent {
	tx := &domain.RawTransaction{Network: domain.NetworkEthereum, Hash: "0xtx", Timestamp: ts}
	ev := domain.NewClassifiedEvent(domain.CategoryDisposal, tx, "0xuser", 0)
	ev.TokenIn = in
	ev.TokenOut = out
	ev.GasFeeWei = big.NewInt(gasWei)
	return ev
}

func TestEnrich_PricesLegsAndGas(t *testing.T) {
	src := &stubSource{prices: map[string]decimal.Decimal{
		"coingecko:ethereum": decimal.NewFromInt(2000),
	}}
	e := NewEnricher(newResolver(t, src), nil)

	oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
	ev := newEvent(ms(2023, time.May, 1),
		&domain.TokenLeg{Token: usdc, Decimals: 6, Amount: big.NewInt(2_000_000_000)},
		&domain.TokenLeg{Token: domain.NativeToken, Decimals: 18, Amount: oneEth},
		21_000*50_000_000_000, // 0.00105 ETH
	)

	unpriced, err := e.Enrich(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 0, unpriced)

	assert.Equal(t, "2000", ev.TokenIn.ValueUSD.Decimal.String())
	assert.Equal(t, domain.PriceSourceStable, ev.TokenIn.PriceSource)
	assert.Equal(t, "2000", ev.TokenOut.ValueUSD.Decimal.String())
	assert.Equal(t, domain.PriceSourceExternal, ev.TokenOut.PriceSource)
	assert.True(t, ev.GasFeeUSD.Valid)
	assert.Equal(t, "2.1", ev.GasFeeUSD.Decimal.String())
}

func TestEnrich_PartialFailure(t *testing.T) {
	e := NewEnricher(newResolver(t, &stubSource{}), nil)

	ev := newEvent(ms(2023, time.May, 1),
		&domain.TokenLeg{Token: junk, Decimals: 18, Amount: big.NewInt(1)},
		&domain.TokenLeg{Token: usdc, Decimals: 6, Amount: big.NewInt(5_000_000)},
		0,
	)

	unpriced, err := e.Enrich(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, unpriced)
	assert.False(t, ev.TokenIn.ValueUSD.Valid)
	assert.Equal(t, domain.PriceSourceUnknown, ev.TokenIn.PriceSource)
	assert.True(t, ev.TokenOut.ValueUSD.Valid)
	assert.Equal(t, "5", ev.TokenOut.ValueUSD.Decimal.String())
}

func TestEnrichAll(t *testing.T) {
	e := NewEnricher(newResolver(t, &stubSource{}), nil)

	var events []*domain.ClassifiedEvent
	for i := 0; i < 10; i++ {
		events = append(events, newEvent(int64(i), &domain.TokenLeg{Token: usdc, Decimals: 6, Amount: big.NewInt(1_000_000)}, nil, 0))
	}
	events = append(events, newEvent(0, &domain.TokenLeg{Token: junk, Decimals: 18, Amount: big.NewInt(1)}, nil, 0))

	unpriced, err := e.EnrichAll(context.Background(), events, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, unpriced)
	for _, ev := range events[:10] {
		assert.True(t, ev.TokenIn.ValueUSD.Valid)
	}
}
