// Package taxengine walks classified events through the ledger and aggregates a tax summary.
package taxengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/ledger"
	"chain-tax-lab/internal/observability"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Ledger *ledger.Ledger   // required, must hold no lots of the summarized address
	Clock  func() time.Time // defaults to time.Now
	Logger *zerolog.Logger  // defaults to the global logger
}

// Engine produces tax summaries. One Engine replays one address's history into its ledger.
type Engine struct {
	ledger *ledger.Ledger
	clock  func() time.Time
	logger zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("taxengine: ledger is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		ledger: opts.Ledger,
		clock:  clock,
		logger: logger.With().Str("component", "taxengine").Logger(),
	}, nil
}

// Options scopes a summary.
type Options struct {
	Network     string         // network of the events, taken from the first event if empty
	PeriodStart int64          // ms, inclusive; earlier events build lots but are not totaled
	PeriodEnd   int64          // ms, inclusive; later events are ignored, 0 means unbounded
	Unrealized  UnrealizedMode // valuation time of unrealized gains
}

// Summarize replays events in ascending (timestamp, block, tx hash, index) order.
//
// Income events acquire their token at its value. A disposal consumes lots of the
// given-up token and acquires the received token at its value, or at the disposal's
// proceeds when unpriced. A transfer in acquires a lot only when its cost is attributed.
// Gas counts once per transaction through the event marked GasPrimary.
//
// Events are annotated in place with their ledger outcome. Ledger errors are recorded on
// the event and in FailedEvents; the remaining events are still processed.
func (e *Engine) Summarize(ctx context.Context, address string, events []*domain.ClassifiedEvent, rates Rates, opts Options) (*domain.TaxSummary, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	mode := opts.Unrealized
	if mode == "" {
		mode = UnrealizedNone
	}
	if _, err := ParseUnrealizedMode(string(mode)); err != nil {
		return nil, err
	}

	sorted := make([]*domain.ClassifiedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	network := opts.Network
	if network == "" && len(sorted) > 0 {
		network = sorted[0].Network
	}

	w := &walk{
		engine: e,
		rates:  rates,
		summary: &domain.TaxSummary{
			Address:                  address,
			Network:                  network,
			PeriodStart:              opts.PeriodStart,
			PeriodEnd:                opts.PeriodEnd,
			OrdinaryIncomeUSD:        decimal.Zero,
			CapitalGainRealizedUSD:   decimal.Zero,
			ShortTermGainUSD:         decimal.Zero,
			LongTermGainUSD:          decimal.Zero,
			TotalGasFeeUSD:           decimal.Zero,
			CapitalGainUnrealizedUSD: decimal.Zero,
			EstimatedTaxDue:          decimal.Zero,
			OrdinaryRate:             rates.Ordinary,
			ShortTermRate:            rates.ShortTerm,
			LongTermRate:             rates.LongTerm,
			HoldingThresholdDays:     rates.HoldingThresholdDays,
			EventCounts:              make(map[domain.Category]int),
		},
	}

	for _, ev := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.PeriodEnd > 0 && ev.Timestamp > opts.PeriodEnd {
			break
		}
		w.apply(ctx, address, ev, ev.Timestamp >= opts.PeriodStart)
	}

	s := w.summary
	s.CapitalGainRealizedUSD = s.ShortTermGainUSD.Add(s.LongTermGainUSD)

	if mode != UnrealizedNone {
		asOf := e.clock().UnixMilli()
		if mode == UnrealizedPeriodEnd && opts.PeriodEnd > 0 {
			asOf = opts.PeriodEnd
		}
		report, err := e.ledger.UnrealizedPositions(ctx, address, asOf, network)
		if err != nil {
			return nil, fmt.Errorf("unrealized positions: %w", err)
		}
		s.UnrealizedAsOf = asOf
		s.CapitalGainUnrealizedUSD = report.TotalUnrealizedUSD
		s.Holdings = report.Positions
		s.SkippedTokens = report.Skipped
	}

	s.EstimatedTaxDue = s.OrdinaryIncomeUSD.Mul(rates.Ordinary).
		Add(s.ShortTermGainUSD.Mul(rates.ShortTerm)).
		Add(s.LongTermGainUSD.Mul(rates.LongTerm))
	s.GeneratedAt = e.clock().UnixMilli()

	e.logger.Info().
		Str("address", address).
		Int("events", len(sorted)).
		Str("income_usd", s.OrdinaryIncomeUSD.StringFixed(2)).
		Str("realized_usd", s.CapitalGainRealizedUSD.StringFixed(2)).
		Int("underflows", len(s.UnderflowEvents)).
		Int("failed", len(s.FailedEvents)).
		Msg("summary computed")

	return s, nil
}

// walk carries the running state of one Summarize call.
type walk struct {
	engine  *Engine
	rates   Rates
	summary *domain.TaxSummary
}

func (w *walk) apply(ctx context.Context, address string, ev *domain.ClassifiedEvent, inPeriod bool) {
	s := w.summary
	if inPeriod {
		s.EventCounts[ev.Category()]++
		if ev.GasPrimary && ev.GasFeeUSD.Valid {
			s.TotalGasFeeUSD = s.TotalGasFeeUSD.Add(ev.GasFeeUSD.Decimal)
		}
	}

	switch ev.Category() {
	case domain.CategoryAirdrop, domain.CategoryStaking:
		w.income(ctx, address, ev, inPeriod)
	case domain.CategoryDisposal:
		w.disposal(ctx, address, ev, inPeriod)
	case domain.CategoryTransfer:
		if ev.TokenIn != nil && ev.AttributedCostUSD.Valid {
			w.acquire(ctx, address, ev, ev.TokenIn, ev.AttributedCostUSD.Decimal)
		}
	case domain.CategoryDeduction:
		// gas only
	}
}

func (w *walk) income(ctx context.Context, address string, ev *domain.ClassifiedEvent, inPeriod bool) {
	leg := ev.TokenIn
	if leg == nil {
		return
	}
	cost := decimal.Zero
	if leg.ValueUSD.Valid {
		cost = leg.ValueUSD.Decimal
		if inPeriod {
			w.summary.OrdinaryIncomeUSD = w.summary.OrdinaryIncomeUSD.Add(cost)
		}
	} else if inPeriod {
		w.summary.UnpricedEvents = append(w.summary.UnpricedEvents, ev.EventID)
	}
	w.acquire(ctx, address, ev, leg, cost)
}

func (w *walk) disposal(ctx context.Context, address string, ev *domain.ClassifiedEvent, inPeriod bool) {
	s := w.summary

	gross, priced := decimal.Zero, false
	switch {
	case ev.TokenOut != nil && ev.TokenOut.ValueUSD.Valid:
		gross, priced = ev.TokenOut.ValueUSD.Decimal, true
	case ev.TokenIn != nil && ev.TokenIn.ValueUSD.Valid:
		// what was received is what the given-up asset fetched
		gross, priced = ev.TokenIn.ValueUSD.Decimal, true
	}

	if ev.TokenOut != nil {
		gas := decimal.Zero
		if ev.GasPrimary && ev.GasFeeUSD.Valid {
			gas = ev.GasFeeUSD.Decimal
		}
		res, err := w.engine.ledger.Dispose(ctx, ledger.DisposeRequest{
			Address:          address,
			Token:            ev.TokenOut.Token,
			Timestamp:        ev.Timestamp,
			TxHash:           ev.TxHash,
			Amount:           ev.TokenOut.Amount,
			GrossProceedsUSD: gross,
			GasFeeUSD:        gas,
		})
		if err != nil {
			w.fail(ev, inPeriod, fmt.Errorf("dispose %s: %w", ev.TokenOut.Token, err))
		} else {
			days := res.HoldingPeriodDays
			longTerm := days >= w.rates.HoldingThresholdDays
			ev.CostBasisUSD = decimal.NewNullDecimal(res.CostBasisUSD)
			ev.HoldingPeriodDays = &days
			ev.LongTerm = longTerm
			ev.Underflow = res.Underflow
			if res.Underflow {
				ev.UncoveredAmount = res.UncoveredAmount
			}

			if priced {
				ev.ProceedsUSD = decimal.NewNullDecimal(res.ProceedsUSD)
				ev.RealizedGainUSD = decimal.NewNullDecimal(res.RealizedGainUSD)
			}
			if inPeriod {
				switch {
				case !priced:
					s.UnpricedEvents = append(s.UnpricedEvents, ev.EventID)
				case longTerm:
					s.LongTermGainUSD = s.LongTermGainUSD.Add(res.RealizedGainUSD)
				default:
					s.ShortTermGainUSD = s.ShortTermGainUSD.Add(res.RealizedGainUSD)
				}
				if res.Underflow {
					s.UnderflowEvents = append(s.UnderflowEvents, ev.EventID)
				}
			}
		}
	}

	if ev.TokenIn != nil {
		cost := gross
		if ev.TokenIn.ValueUSD.Valid {
			cost = ev.TokenIn.ValueUSD.Decimal
		}
		w.acquire(ctx, address, ev, ev.TokenIn, cost)
	}
}

func (w *walk) acquire(ctx context.Context, address string, ev *domain.ClassifiedEvent, leg *domain.TokenLeg, cost decimal.Decimal) {
	if leg.Amount == nil || leg.Amount.Sign() <= 0 {
		return
	}
	_, err := w.engine.ledger.Acquire(ctx, ledger.AcquireRequest{
		Address:      address,
		Token:        leg.Token,
		Symbol:       leg.Symbol,
		Decimals:     leg.Decimals,
		Timestamp:    ev.Timestamp,
		TxHash:       ev.TxHash,
		Amount:       leg.Amount,
		CostBasisUSD: cost,
	})
	if err != nil {
		w.fail(ev, ev.Timestamp >= w.summary.PeriodStart, fmt.Errorf("acquire %s: %w", leg.Token, err))
	}
}

// fail records a per-event ledger error.
func (w *walk) fail(ev *domain.ClassifiedEvent, inPeriod bool, err error) {
	first := ev.Error == ""
	if first {
		ev.Error = err.Error()
	} else {
		ev.Error += "; " + err.Error()
	}
	if inPeriod && first {
		w.summary.FailedEvents = append(w.summary.FailedEvents, ev.EventID)
	}
	observability.RecordLedgerError(ev.Category().String())
	w.engine.logger.Error().Err(err).Str("event_id", ev.EventID).Str("tx", ev.TxHash).Msg("ledger rejected event")
}
