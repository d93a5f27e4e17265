package taxengine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidRates is returned for negative rates or a non-positive holding threshold.
var ErrInvalidRates = errors.New("invalid tax rates")

// Rates are the flat rates applied to each bucket of a summary.
type Rates struct {
	Ordinary             decimal.Decimal
	ShortTerm            decimal.Decimal
	LongTerm             decimal.Decimal
	HoldingThresholdDays int
}

// DefaultRates returns 30% ordinary, 30% short-term, 15% long-term, 365-day threshold.
func DefaultRates() Rates {
	return Rates{
		Ordinary:             decimal.RequireFromString("0.30"),
		ShortTerm:            decimal.RequireFromString("0.30"),
		LongTerm:             decimal.RequireFromString("0.15"),
		HoldingThresholdDays: 365,
	}
}

// Validate checks that every rate is non-negative and the threshold is positive.
func (r Rates) Validate() error {
	for name, rate := range map[string]decimal.Decimal{
		"ordinary":   r.Ordinary,
		"short-term": r.ShortTerm,
		"long-term":  r.LongTerm,
	} {
		if rate.IsNegative() {
			return fmt.Errorf("%w: %s rate %s is negative", ErrInvalidRates, name, rate)
		}
	}
	if r.HoldingThresholdDays <= 0 {
		return fmt.Errorf("%w: holding threshold %d must be positive", ErrInvalidRates, r.HoldingThresholdDays)
	}
	return nil
}

// UnrealizedMode selects the valuation time of unrealized gains.
type UnrealizedMode string

const (
	UnrealizedNone      UnrealizedMode = "none"       // skip unrealized gains
	UnrealizedNow       UnrealizedMode = "now"        // live view at the clock's time
	UnrealizedPeriodEnd UnrealizedMode = "period_end" // point-in-time at the period end
)

// ParseUnrealizedMode parses a mode name. Empty means none.
func ParseUnrealizedMode(s string) (UnrealizedMode, error) {
	switch UnrealizedMode(s) {
	case "", UnrealizedNone:
		return UnrealizedNone, nil
	case UnrealizedNow, UnrealizedPeriodEnd:
		return UnrealizedMode(s), nil
	}
	return "", fmt.Errorf("unknown unrealized mode %q", s)
}
