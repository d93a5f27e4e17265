package lookup

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

func quotes(points ...int64) []*domain.PriceQuote {
	out := make([]*domain.PriceQuote, len(points))
	for i, ts := range points {
		out[i] = &domain.PriceQuote{Timestamp: ts, PriceUSD: decimal.NewFromInt(ts)}
	}
	return out
}

func TestNearestQuote_EmptySlice(t *testing.T) {
	_, err := NearestQuote(1000, 100, nil)
	if !errors.Is(err, ErrNoPriceData) {
		t.Errorf("expected ErrNoPriceData, got %v", err)
	}
}

func TestNearestQuote(t *testing.T) {
	qs := quotes(1000, 2000, 3000)

	tests := []struct {
		name      string
		target    int64
		tolerance int64
		wantTs    int64
		wantErr   error
	}{
		{name: "exact match", target: 2000, tolerance: 0, wantTs: 2000},
		{name: "closer to later", target: 2600, tolerance: 500, wantTs: 3000},
		{name: "closer to earlier", target: 2400, tolerance: 500, wantTs: 2000},
		{name: "tie prefers earlier", target: 2500, tolerance: 500, wantTs: 2000},
		{name: "before first", target: 900, tolerance: 100, wantTs: 1000},
		{name: "after last", target: 3050, tolerance: 100, wantTs: 3000},
		{name: "outside window", target: 2500, tolerance: 499, wantErr: ErrOutOfWindow},
		{name: "far after last", target: 10000, tolerance: 100, wantErr: ErrOutOfWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NearestQuote(tt.target, tt.tolerance, qs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Timestamp != tt.wantTs {
				t.Errorf("expected quote at %d, got %d", tt.wantTs, q.Timestamp)
			}
		})
	}
}
