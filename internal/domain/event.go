package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Category is the tax category assigned to a classified event.
type Category string

const (
	CategoryDisposal  Category = "DISPOSAL"
	CategoryStaking   Category = "STAKING"
	CategoryAirdrop   Category = "AIRDROP"
	CategoryTransfer  Category = "TRANSFER"
	CategoryDeduction Category = "DEDUCTION"
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryDisposal, CategoryStaking, CategoryAirdrop, CategoryTransfer, CategoryDeduction:
		return true
	}
	return false
}

// IsIncome reports whether the category is taxed as ordinary income.
func (c Category) IsIncome() bool {
	return c == CategoryStaking || c == CategoryAirdrop
}

// TokenLeg is one side of an event: a token amount and its USD value once priced.
type TokenLeg struct {
	Token       string              // token contract address or NativeToken
	Symbol      string              // display symbol, may be empty
	Decimals    int                 // token decimals used for unit conversion
	Amount      *big.Int            // raw integer amount
	ValueUSD    decimal.NullDecimal // invalid until priced
	PriceSource PriceSource         // where the unit price came from
}

// Clone returns a deep copy of the leg.
func (l *TokenLeg) Clone() *TokenLeg {
	if l == nil {
		return nil
	}
	c := *l
	if l.Amount != nil {
		c.Amount = new(big.Int).Set(l.Amount)
	}
	return &c
}

// ClassifiedEvent is the output of classifying one transaction for one address.
// Corresponds to classified_events table in PostgreSQL.
type ClassifiedEvent struct {
	EventID     string // deterministic id from (network, tx hash, index, address)
	TxHash      string
	Index       int // position among events of the same transaction
	Network     string
	Address     string // the address the event was classified for
	BlockNumber int64
	Timestamp   int64 // milliseconds

	category Category

	TokenIn  *TokenLeg // asset received, nil if none
	TokenOut *TokenLeg // asset given up, nil if none

	GasFeeWei  *big.Int
	GasFeeUSD  decimal.NullDecimal
	GasPrimary bool // true for the one event of a transaction that carries its gas into totals

	Protocol string // registry name when matched by protocol
	Note     string

	// AttributedCostUSD is the acquisition cost of an inbound transfer when it is known.
	AttributedCostUSD decimal.NullDecimal

	// Ledger outcome, set by the tax engine.
	CostBasisUSD      decimal.NullDecimal
	ProceedsUSD       decimal.NullDecimal
	RealizedGainUSD   decimal.NullDecimal
	HoldingPeriodDays *int
	LongTerm          bool
	Underflow         bool
	UncoveredAmount   *big.Int
	Error             string
}

// NewClassifiedEvent creates an event with its category fixed for its lifetime.
func NewClassifiedEvent(category Category, tx *RawTransaction, address string, index int) *ClassifiedEvent {
	return &ClassifiedEvent{
		TxHash:      tx.Hash,
		Index:       index,
		Network:     tx.Network,
		Address:     address,
		BlockNumber: tx.BlockNumber,
		Timestamp:   tx.Timestamp,
		category:    category,
		GasFeeWei:   new(big.Int),
	}
}

// RestoreClassifiedEvent rebuilds an event read back from storage.
func RestoreClassifiedEvent(category Category) *ClassifiedEvent {
	return &ClassifiedEvent{category: category, GasFeeWei: new(big.Int)}
}

// Category returns the tax category. It never changes after construction.
func (e *ClassifiedEvent) Category() Category {
	return e.category
}

// Less orders events by (timestamp, block, tx hash, index).
func (e *ClassifiedEvent) Less(o *ClassifiedEvent) bool {
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	if e.TxHash != o.TxHash {
		return e.TxHash < o.TxHash
	}
	return e.Index < o.Index
}
