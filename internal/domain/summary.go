package domain

import "github.com/shopspring/decimal"

// TaxSummary aggregates a period's classified events for one address.
// It is not modified after creation.
type TaxSummary struct {
	Address     string
	Network     string
	PeriodStart int64 // ms, inclusive
	PeriodEnd   int64 // ms, inclusive

	OrdinaryIncomeUSD        decimal.Decimal
	CapitalGainRealizedUSD   decimal.Decimal // short + long
	ShortTermGainUSD         decimal.Decimal
	LongTermGainUSD          decimal.Decimal
	TotalGasFeeUSD           decimal.Decimal
	CapitalGainUnrealizedUSD decimal.Decimal
	UnrealizedAsOf           int64 // ms, 0 if unrealized gains were not computed
	EstimatedTaxDue          decimal.Decimal

	OrdinaryRate         decimal.Decimal
	ShortTermRate        decimal.Decimal
	LongTermRate         decimal.Decimal
	HoldingThresholdDays int

	EventCounts     map[Category]int
	UnderflowEvents []string // event ids whose disposal exceeded tracked lots
	UnpricedEvents  []string // event ids left out of totals for lack of a price
	FailedEvents    []string // event ids the ledger rejected
	Holdings        []HoldingView
	SkippedTokens   []string // tokens left out of unrealized gains for lack of a price
	GeneratedAt     int64    // ms
}
