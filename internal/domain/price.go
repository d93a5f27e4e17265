package domain

import "github.com/shopspring/decimal"

// PriceSource tags where a USD price came from.
type PriceSource string

const (
	PriceSourceStable   PriceSource = "stable"
	PriceSourceCache    PriceSource = "cache"
	PriceSourceExternal PriceSource = "external"
	PriceSourceFallback PriceSource = "fallback"
	PriceSourceUnknown  PriceSource = "unknown"
)

// String returns the string representation of PriceSource.
func (s PriceSource) String() string {
	return string(s)
}

// PriceQuote is a cached historical USD price.
// Corresponds to price_quotes table in PostgreSQL.
type PriceQuote struct {
	Network   string
	Token     string          // lowercase token address or NativeToken
	Timestamp int64           // quote time in milliseconds
	PriceUSD  decimal.Decimal // USD per whole token
	Source    PriceSource     // origin of the quote, normally external
	CreatedAt int64           // record creation timestamp (ms)
}
