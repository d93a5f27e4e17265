package pricing

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/tokens"
)

// Enricher attaches USD values to classified events.
// A leg that cannot be priced keeps an unset value; other legs are still priced.
type Enricher struct {
	prices PriceLookup
	logger zerolog.Logger
}

// NewEnricher creates an enricher over prices. A nil logger uses the global logger.
func NewEnricher(prices PriceLookup, logger *zerolog.Logger) *Enricher {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Enricher{prices: prices, logger: l.With().Str("component", "enricher").Logger()}
}

// Enrich prices the event's legs and gas fee. It returns the number of values left unpriced.
// Only context cancellation is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, ev *domain.ClassifiedEvent) (int, error) {
	unpriced := 0
	for _, leg := range []*domain.TokenLeg{ev.TokenIn, ev.TokenOut} {
		if leg == nil || leg.ValueUSD.Valid {
			continue
		}
		price, source, err := e.prices.Resolve(ctx, leg.Token, ev.Timestamp, ev.Network)
		leg.PriceSource = source
		if err != nil {
			if ctx.Err() != nil {
				return unpriced, ctx.Err()
			}
			unpriced++
			continue
		}
		leg.ValueUSD.Decimal = tokens.ValueUSD(leg.Amount, leg.Decimals, price)
		leg.ValueUSD.Valid = true
	}

	if ev.GasFeeWei != nil && ev.GasFeeWei.Sign() > 0 && !ev.GasFeeUSD.Valid {
		price, _, err := e.prices.Resolve(ctx, domain.NativeToken, ev.Timestamp, ev.Network)
		if err != nil {
			if ctx.Err() != nil {
				return unpriced, ctx.Err()
			}
			unpriced++
		} else {
			ev.GasFeeUSD.Decimal = tokens.ValueUSD(ev.GasFeeWei, domain.NativeDecimals, price)
			ev.GasFeeUSD.Valid = true
		}
	}

	return unpriced, nil
}

// EnrichAll prices events concurrently with at most workers in flight.
// It returns the total number of unpriced values.
func (e *Enricher) EnrichAll(ctx context.Context, events []*domain.ClassifiedEvent, workers int) (int, error) {
	if workers < 1 {
		workers = 1
	}

	var unpriced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			n, err := e.Enrich(gctx, ev)
			unpriced.Add(int64(n))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return int(unpriced.Load()), err
		}
		e.logger.Error().Err(err).Msg("enrich events")
		return int(unpriced.Load()), err
	}
	if n := unpriced.Load(); n > 0 {
		e.logger.Info().Int64("unpriced", n).Int("events", len(events)).Msg("some values left unpriced")
	}
	return int(unpriced.Load()), nil
}
