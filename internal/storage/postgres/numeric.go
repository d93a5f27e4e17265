package postgres

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Raw token amounts travel as NUMERIC text to keep full 256-bit precision.

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullBigText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", s)
	}
	return v, nil
}

func parseNullBig(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseBig(*s)
}

func nullDecimalText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse decimal %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}
