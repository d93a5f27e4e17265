package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

var eventHeader = []string{
	"event_id", "timestamp_ms", "date", "tx_hash", "index", "category",
	"token_out", "amount_out", "value_out_usd",
	"token_in", "amount_in", "value_in_usd",
	"gas_fee_usd", "gas_primary", "cost_basis_usd", "proceeds_usd", "realized_gain_usd",
	"holding_days", "long_term", "underflow", "protocol", "note", "error",
}

var lotHeader = []string{
	"lot_id", "token", "symbol", "acquired_at_ms", "acquired_tx",
	"original_amount", "remaining_amount", "cost_basis_usd", "disposed", "disposed_at_ms", "disposed_tx",
}

// RenderEventsCSV writes one row per event. Amounts are in whole token units.
func RenderEventsCSV(w io.Writer, events []*domain.ClassifiedEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventHeader); err != nil {
		return fmt.Errorf("write events header: %w", err)
	}

	for _, e := range events {
		outToken, outAmount, outValue := legColumns(e.TokenOut)
		inToken, inAmount, inValue := legColumns(e.TokenIn)
		days := ""
		if e.HoldingPeriodDays != nil {
			days = strconv.Itoa(*e.HoldingPeriodDays)
		}
		row := []string{
			e.EventID, strconv.FormatInt(e.Timestamp, 10), formatDay(e.Timestamp), e.TxHash, strconv.Itoa(e.Index), e.Category().String(),
			outToken, outAmount, outValue,
			inToken, inAmount, inValue,
			nullString(e.GasFeeUSD), strconv.FormatBool(e.GasPrimary),
			nullString(e.CostBasisUSD), nullString(e.ProceedsUSD), nullString(e.RealizedGainUSD),
			days, strconv.FormatBool(e.LongTerm), strconv.FormatBool(e.Underflow), e.Protocol, e.Note, e.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write event %s: %w", e.EventID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// RenderLotsCSV writes one row per lot. Amounts are in whole token units.
func RenderLotsCSV(w io.Writer, lots []*domain.CostLot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(lotHeader); err != nil {
		return fmt.Errorf("write lots header: %w", err)
	}

	for _, l := range lots {
		disposedAt := ""
		if l.Disposed {
			disposedAt = strconv.FormatInt(l.DisposedAt, 10)
		}
		row := []string{
			l.LotID, l.Token, l.Symbol, strconv.FormatInt(l.AcquiredAt, 10), l.AcquiredTx,
			units(l.OriginalAmount, l.Decimals), units(l.RemainingAmount, l.Decimals), l.CostBasisUSD.String(),
			strconv.FormatBool(l.Disposed), disposedAt, l.DisposedTx,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write lot %s: %w", l.LotID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func legColumns(l *domain.TokenLeg) (token, amount, value string) {
	if l == nil {
		return "", "", ""
	}
	return l.Token, units(l.Amount, l.Decimals), nullString(l.ValueUSD)
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
