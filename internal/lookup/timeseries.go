package lookup

import (
	"errors"

	"chain-tax-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData = errors.New("no price data available")
	ErrOutOfWindow = errors.New("no price within tolerance window")
)

// NearestQuote returns the quote closest to target within ±toleranceMs.
// quotes must be ordered by timestamp ASC. On equal distance the earlier quote wins.
// Returns ErrNoPriceData if quotes is empty, ErrOutOfWindow if none is close enough.
func NearestQuote(target, toleranceMs int64, quotes []*domain.PriceQuote) (*domain.PriceQuote, error) {
	if len(quotes) == 0 {
		return nil, ErrNoPriceData
	}

	// first index with timestamp >= target
	lo, hi := 0, len(quotes)
	for lo < hi {
		mid := (lo + hi) / 2
		if quotes[mid].Timestamp < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	var best *domain.PriceQuote
	bestDist := int64(-1)
	for _, i := range []int{lo - 1, lo} {
		if i < 0 || i >= len(quotes) {
			continue
		}
		d := abs(quotes[i].Timestamp - target)
		if bestDist < 0 || d < bestDist {
			best, bestDist = quotes[i], d
		}
	}

	if bestDist > toleranceMs {
		return nil, ErrOutOfWindow
	}
	return best, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
