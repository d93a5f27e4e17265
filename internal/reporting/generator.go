package reporting

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

// categoryOrder fixes the row order of the category table.
var categoryOrder = []domain.Category{
	domain.CategoryDisposal,
	domain.CategoryStaking,
	domain.CategoryAirdrop,
	domain.CategoryTransfer,
	domain.CategoryDeduction,
}

// Input carries what a report is generated from.
type Input struct {
	JobID   string
	Summary *domain.TaxSummary
	Events  []*domain.ClassifiedEvent
	Lots    []*domain.CostLot
	Errors  []string // per-event failures collected by the run
}

// Generate builds a report. Only events inside the summary's period count toward
// the category and token tables; every event is listed.
func Generate(in Input, generatedAt time.Time) (*Report, error) {
	if in.Summary == nil {
		return nil, fmt.Errorf("generate report: summary is required")
	}
	s := in.Summary

	events := make([]*domain.ClassifiedEvent, len(in.Events))
	copy(events, in.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Less(events[j]) })

	r := &Report{
		GeneratedAt: generatedAt,
		JobID:       in.JobID,
		Summary:     s,
		Events:      events,
		Lots:        in.Lots,
	}

	cats := make(map[domain.Category]*CategoryRow)
	gains := make(map[string]*TokenGainRow)
	for _, ev := range events {
		if !inPeriod(s, ev.Timestamp) {
			continue
		}

		row, ok := cats[ev.Category()]
		if !ok {
			row = &CategoryRow{Category: ev.Category(), InflowUSD: decimal.Zero, OutflowUSD: decimal.Zero, GasUSD: decimal.Zero}
			cats[ev.Category()] = row
		}
		row.Events++
		if ev.TokenIn != nil && ev.TokenIn.ValueUSD.Valid {
			row.InflowUSD = row.InflowUSD.Add(ev.TokenIn.ValueUSD.Decimal)
		}
		if ev.TokenOut != nil && ev.TokenOut.ValueUSD.Valid {
			row.OutflowUSD = row.OutflowUSD.Add(ev.TokenOut.ValueUSD.Decimal)
		}
		if ev.GasPrimary && ev.GasFeeUSD.Valid {
			row.GasUSD = row.GasUSD.Add(ev.GasFeeUSD.Decimal)
		}

		if ev.Category() == domain.CategoryDisposal && ev.TokenOut != nil && ev.RealizedGainUSD.Valid {
			addGain(gains, ev)
		}
	}

	for _, c := range categoryOrder {
		if row, ok := cats[c]; ok {
			r.Categories = append(r.Categories, *row)
		}
	}
	for _, g := range gains {
		r.TokenGains = append(r.TokenGains, *g)
	}
	sort.Slice(r.TokenGains, func(i, j int) bool { return r.TokenGains[i].Token < r.TokenGains[j].Token })

	r.Warnings = warnings(s, in.Errors)
	return r, nil
}

func addGain(gains map[string]*TokenGainRow, ev *domain.ClassifiedEvent) {
	leg := ev.TokenOut
	g, ok := gains[leg.Token]
	if !ok {
		g = &TokenGainRow{
			Token:       leg.Token,
			Symbol:      leg.Symbol,
			ProceedsUSD: decimal.Zero,
			CostUSD:     decimal.Zero,
			ShortTerm:   decimal.Zero,
			LongTerm:    decimal.Zero,
		}
		gains[leg.Token] = g
	}
	g.Disposals++
	if ev.ProceedsUSD.Valid {
		g.ProceedsUSD = g.ProceedsUSD.Add(ev.ProceedsUSD.Decimal)
	}
	if ev.CostBasisUSD.Valid {
		g.CostUSD = g.CostUSD.Add(ev.CostBasisUSD.Decimal)
	}
	if ev.LongTerm {
		g.LongTerm = g.LongTerm.Add(ev.RealizedGainUSD.Decimal)
	} else {
		g.ShortTerm = g.ShortTerm.Add(ev.RealizedGainUSD.Decimal)
	}
	if ev.Underflow {
		g.Underflows++
	}
}

func warnings(s *domain.TaxSummary, errs []string) []string {
	var out []string
	if n := len(s.UnderflowEvents); n > 0 {
		out = append(out, fmt.Sprintf("%d disposal(s) exceeded tracked lots; the shortfall was treated as zero cost", n))
	}
	if n := len(s.UnpricedEvents); n > 0 {
		out = append(out, fmt.Sprintf("%d event(s) could not be priced and are excluded from totals", n))
	}
	if n := len(s.SkippedTokens); n > 0 {
		out = append(out, fmt.Sprintf("%d token(s) without a current price are excluded from unrealized gains", n))
	}
	return append(out, errs...)
}

func inPeriod(s *domain.TaxSummary, ts int64) bool {
	if ts < s.PeriodStart {
		return false
	}
	return s.PeriodEnd <= 0 || ts <= s.PeriodEnd
}
