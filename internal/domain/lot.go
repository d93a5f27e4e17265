package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// CostLot is a quantity of one token acquired at one time for one cost.
// Corresponds to cost_lots table in PostgreSQL.
type CostLot struct {
	LotID           string          // deterministic id from (address, token, acquired tx, acquired at)
	Address         string          // owning address
	Token           string          // token address or NativeToken
	Symbol          string          // display symbol
	Decimals        int             // token decimals
	AcquiredAt      int64           // acquisition time in milliseconds
	AcquiredTx      string          // acquiring transaction hash
	OriginalAmount  *big.Int        // raw amount at acquisition
	RemainingAmount *big.Int        // raw amount not yet disposed
	CostBasisUSD    decimal.Decimal // cost of the whole original amount
	Disposed        bool            // true once remaining reaches zero
	DisposedAt      int64           // time of the consuming disposal (ms), 0 while open
	DisposedTx      string          // consuming transaction hash
}

// Clone returns a deep copy of the lot.
func (l *CostLot) Clone() *CostLot {
	c := *l
	if l.OriginalAmount != nil {
		c.OriginalAmount = new(big.Int).Set(l.OriginalAmount)
	}
	if l.RemainingAmount != nil {
		c.RemainingAmount = new(big.Int).Set(l.RemainingAmount)
	}
	return &c
}

// LotConsumption records that a disposal took part of a lot.
// Corresponds to lot_consumptions table in PostgreSQL.
type LotConsumption struct {
	LotID     string
	TxHash    string   // disposing transaction
	Timestamp int64    // disposal time in milliseconds
	Amount    *big.Int // raw amount taken from the lot
}

// DisposalResult is the outcome of a FIFO disposal.
type DisposalResult struct {
	CostBasisUSD      decimal.Decimal  // basis of the covered amount, zero for any shortfall
	ProceedsUSD       decimal.Decimal  // gross proceeds minus gas fee
	RealizedGainUSD   decimal.Decimal  // proceeds minus cost basis
	HoldingPeriodDays int              // amount-weighted floor of days held
	LongTerm          bool             // holding period reached the threshold
	CoveredAmount     *big.Int         // raw amount matched against lots
	UncoveredAmount   *big.Int         // raw shortfall treated as zero-cost
	Underflow         bool             // UncoveredAmount > 0
	Consumptions      []LotConsumption // per-lot amounts taken, FIFO order
}

// HoldingView is the unrealized position of one token at a point in time.
type HoldingView struct {
	Token          string
	Symbol         string
	Amount         *big.Int        // raw amount held as of the view time
	CostBasisUSD   decimal.Decimal // basis of the held amount
	PriceUSD       decimal.Decimal // unit price at the view time
	PriceSource    PriceSource
	MarketValueUSD decimal.Decimal
	UnrealizedUSD  decimal.Decimal // market value minus cost basis
	OpenLots       int
	OldestAcquired int64 // ms
}
