package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

// Report is the rendered view of one tax summary.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	JobID       string

	Summary *domain.TaxSummary

	// Per-category event counts and values, in category order
	Categories []CategoryRow

	// Realized gains per disposed token, sorted by token
	TokenGains []TokenGainRow

	// Events in ledger order
	Events []*domain.ClassifiedEvent

	// Lots in FIFO order
	Lots []*domain.CostLot

	// Warnings
	Warnings []string
}

// CategoryRow summarizes the in-period events of one category.
type CategoryRow struct {
	Category   domain.Category
	Events     int
	InflowUSD  decimal.Decimal // priced TokenIn values
	OutflowUSD decimal.Decimal // priced TokenOut values
	GasUSD     decimal.Decimal // primary gas only
}

// TokenGainRow aggregates the in-period disposals of one token.
type TokenGainRow struct {
	Token       string
	Symbol      string
	Disposals   int
	ProceedsUSD decimal.Decimal
	CostUSD     decimal.Decimal
	ShortTerm   decimal.Decimal
	LongTerm    decimal.Decimal
	Underflows  int
}
