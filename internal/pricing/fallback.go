package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FallbackTable holds yearly average USD prices by symbol.
// It is the last resort when neither the cache nor the external source answers.
type FallbackTable struct {
	prices map[string]map[int]decimal.Decimal // symbol -> year -> price
}

// NewFallbackTable builds a table from symbol -> year -> price.
func NewFallbackTable(prices map[string]map[int]string) *FallbackTable {
	t := &FallbackTable{prices: make(map[string]map[int]decimal.Decimal, len(prices))}
	for sym, years := range prices {
		m := make(map[int]decimal.Decimal, len(years))
		for y, p := range years {
			m[y] = decimal.RequireFromString(p)
		}
		t.prices[strings.ToUpper(sym)] = m
	}
	return t
}

// DefaultFallbackTable returns yearly averages for supported native assets.
func DefaultFallbackTable() *FallbackTable {
	return NewFallbackTable(map[string]map[int]string{
		"ETH": {
			2017: "220", 2018: "480", 2019: "180", 2020: "307",
			2021: "2775", 2022: "1985", 2023: "1850", 2024: "3100", 2025: "3000",
		},
		"MATIC": {2020: "0.02", 2021: "1.05", 2022: "0.95", 2023: "0.75", 2024: "0.45", 2025: "0.25"},
		"BNB":   {2019: "20", 2020: "22", 2021: "370", 2022: "330", 2023: "260", 2024: "530", 2025: "700"},
		"AVAX":  {2021: "45", 2022: "35", 2023: "15", 2024: "30", 2025: "22"},
		"SOL":   {2021: "85", 2022: "45", 2023: "40", 2024: "165", 2025: "170"},
	})
}

// Lookup returns the average for the UTC year of ts (ms).
// A year past the table's end uses the latest earlier year.
func (t *FallbackTable) Lookup(symbol string, ts int64) (decimal.Decimal, bool) {
	years, ok := t.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, false
	}
	year := time.UnixMilli(ts).UTC().Year()
	if p, ok := years[year]; ok {
		return p, true
	}

	best := 0
	for y := range years {
		if y < year && y > best {
			best = y
		}
	}
	if best == 0 {
		return decimal.Zero, false
	}
	return years[best], true
}
