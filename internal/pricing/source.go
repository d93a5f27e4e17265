// Package pricing resolves historical USD prices for tokens.
package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

// Errors returned by pricing.
var (
	// ErrPriceUnavailable is returned when no source, cache or fallback has a price.
	// It is a soft error: callers leave the USD value unset and continue.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrCoinNotFound is returned by a historical source that does not know the key.
	ErrCoinNotFound = errors.New("coin not found")

	// ErrInvalidTolerance is returned for a cache tolerance outside [5m, 60m].
	ErrInvalidTolerance = errors.New("cache tolerance must be between 5 and 60 minutes")
)

// HistoricalSource fetches a historical USD price from an external service.
// key is "network:address" or an alias such as "coingecko:ethereum".
type HistoricalSource interface {
	HistoricalPrice(ctx context.Context, key string, ts int64) (decimal.Decimal, error)
}

// PriceLookup resolves the USD price of a token at a time.
type PriceLookup interface {
	Resolve(ctx context.Context, token string, ts int64, network string) (decimal.Decimal, domain.PriceSource, error)
}
