package main

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"chain-tax-lab/internal/domain"
)

func TestPrintEvent(t *testing.T) {
	tx := &domain.RawTransaction{
		Hash:        "0xabc",
		Network:     domain.NetworkEthereum,
		BlockNumber: 10,
		Timestamp:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
	ev := domain.NewClassifiedEvent(domain.CategoryDisposal, tx, "0xuser", 0)
	ev.TokenOut = &domain.TokenLeg{
		Token:    "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984",
		Symbol:   "UNI",
		Decimals: 18,
		Amount:   new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
		ValueUSD: decimal.NewNullDecimal(decimal.NewFromInt(30)),
	}
	ev.TokenIn = &domain.TokenLeg{
		Token:    "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		Symbol:   "USDC",
		Decimals: 6,
		Amount:   big.NewInt(30_000_000),
	}
	ev.GasFeeUSD = decimal.NewNullDecimal(decimal.RequireFromString("1.5"))

	var buf bytes.Buffer
	printEvent(&buf, ev)

	assert.Equal(t,
		"2024-06-01T12:00:00Z  DISPOSAL   0xabc  out 3 UNI ($30.00)  in 30 USDC  gas $1.50\n",
		buf.String())
}
