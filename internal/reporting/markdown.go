package reporting

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/tokens"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	// Header
	sb.WriteString("# Tax Report\n\n")
	sb.WriteString(fmt.Sprintf("Address: `%s` | Network: %s\n\n", s.Address, s.Network))
	sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n", formatDay(s.PeriodStart), formatPeriodEnd(s.PeriodEnd)))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))
	if r.JobID != "" {
		sb.WriteString(fmt.Sprintf("Job: %s\n\n", r.JobID))
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Ordinary Income | %s |\n", usd(s.OrdinaryIncomeUSD)))
	sb.WriteString(fmt.Sprintf("| Short-Term Gains | %s |\n", usd(s.ShortTermGainUSD)))
	sb.WriteString(fmt.Sprintf("| Long-Term Gains | %s |\n", usd(s.LongTermGainUSD)))
	sb.WriteString(fmt.Sprintf("| Realized Gains | %s |\n", usd(s.CapitalGainRealizedUSD)))
	sb.WriteString(fmt.Sprintf("| Gas Fees | %s |\n", usd(s.TotalGasFeeUSD)))
	if s.UnrealizedAsOf > 0 {
		sb.WriteString(fmt.Sprintf("| Unrealized Gains (as of %s) | %s |\n", formatDay(s.UnrealizedAsOf), usd(s.CapitalGainUnrealizedUSD)))
	}
	sb.WriteString(fmt.Sprintf("| **Estimated Tax Due** | **%s** |\n", usd(s.EstimatedTaxDue)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Rates: ordinary %s%%, short-term %s%%, long-term %s%% after %d days.\n\n",
		pct(s.OrdinaryRate), pct(s.ShortTermRate), pct(s.LongTermRate), s.HoldingThresholdDays))

	// Warnings
	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	// Categories
	sb.WriteString("## Events by Category\n\n")
	if len(r.Categories) > 0 {
		sb.WriteString("| Category | Events | Inflow | Outflow | Gas |\n")
		sb.WriteString("|----------|--------|--------|---------|-----|\n")
		for _, c := range r.Categories {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				c.Category, c.Events, usd(c.InflowUSD), usd(c.OutflowUSD), usd(c.GasUSD)))
		}
	} else {
		sb.WriteString("No events in period.\n")
	}
	sb.WriteString("\n")

	// Realized gains
	sb.WriteString("## Realized Gains by Token\n\n")
	if len(r.TokenGains) > 0 {
		sb.WriteString("| Token | Disposals | Proceeds | Cost | Short-Term | Long-Term |\n")
		sb.WriteString("|-------|-----------|----------|------|------------|-----------|\n")
		for _, g := range r.TokenGains {
			name := g.Symbol
			if g.Underflows > 0 {
				name += " ⚠"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s |\n",
				name, g.Disposals, usd(g.ProceedsUSD), usd(g.CostUSD), usd(g.ShortTerm), usd(g.LongTerm)))
		}
	} else {
		sb.WriteString("No priced disposals in period.\n")
	}
	sb.WriteString("\n")

	// Holdings
	if s.UnrealizedAsOf > 0 {
		sb.WriteString("## Holdings\n\n")
		if len(s.Holdings) > 0 {
			sb.WriteString("| Token | Amount | Cost | Price | Value | Unrealized | Lots |\n")
			sb.WriteString("|-------|--------|------|-------|-------|------------|------|\n")
			for _, h := range s.Holdings {
				sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %d |\n",
					h.Symbol, units(h.Amount, decimalsOf(r.Lots, h.Token)), usd(h.CostBasisUSD),
					usd(h.PriceUSD), usd(h.MarketValueUSD), usd(h.UnrealizedUSD), h.OpenLots))
			}
		} else {
			sb.WriteString("No open positions.\n")
		}
		sb.WriteString("\n")
	}

	// Events
	sb.WriteString("## Events\n\n")
	if len(r.Events) > 0 {
		sb.WriteString("| Date | Tx | Category | Out | In | Gain | Days | Note |\n")
		sb.WriteString("|------|----|----------|-----|----|------|------|------|\n")
		for _, e := range r.Events {
			days := ""
			if e.HoldingPeriodDays != nil {
				days = fmt.Sprintf("%d", *e.HoldingPeriodDays)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				formatDay(e.Timestamp), shortHash(e.TxHash), e.Category(),
				legText(e.TokenOut), legText(e.TokenIn), nullUSD(e.RealizedGainUSD), days, eventNote(e)))
		}
	} else {
		sb.WriteString("No events.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func nullUSD(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return usd(d.Decimal)
}

func pct(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}

func units(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return tokens.ToUnits(amount, decimals).String()
}

func legText(l *domain.TokenLeg) string {
	if l == nil {
		return ""
	}
	name := l.Symbol
	if name == "" {
		name = shortHash(l.Token)
	}
	return units(l.Amount, l.Decimals) + " " + name
}

func eventNote(e *domain.ClassifiedEvent) string {
	parts := make([]string, 0, 3)
	if e.Protocol != "" {
		parts = append(parts, e.Protocol)
	}
	if e.Note != "" {
		parts = append(parts, e.Note)
	}
	if e.Underflow {
		parts = append(parts, "exceeds tracked lots")
	}
	if e.Error != "" {
		parts = append(parts, "error: "+e.Error)
	}
	return strings.Join(parts, "; ")
}

func decimalsOf(lots []*domain.CostLot, token string) int {
	for _, l := range lots {
		if l.Token == token {
			return l.Decimals
		}
	}
	return tokens.DefaultDecimals
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}

func formatDay(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

func formatPeriodEnd(ms int64) string {
	if ms <= 0 {
		return "open"
	}
	return formatDay(ms)
}
