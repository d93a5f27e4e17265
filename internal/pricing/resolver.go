package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/observability"
	"chain-tax-lab/internal/storage"
	"chain-tax-lab/internal/tokens"
)

// Cache tolerance bounds.
const (
	DefaultTolerance = 30 * time.Minute
	MinTolerance     = 5 * time.Minute
	MaxTolerance     = 60 * time.Minute
)

// Options configures a Resolver.
type Options struct {
	Quotes    storage.PriceQuoteStore // required, append-only quote cache
	Source    HistoricalSource        // optional external source
	Tokens    *tokens.Registry        // required, stablecoin set and symbols
	Fallback  *FallbackTable          // DefaultFallbackTable() if nil
	Tolerance time.Duration           // DefaultTolerance if zero
	Logger    *zerolog.Logger         // defaults to the global logger
}

// Resolver resolves historical USD prices.
// Order: stablecoin, cached quote, external source, fallback table.
type Resolver struct {
	quotes    storage.PriceQuoteStore
	source    HistoricalSource
	tokens    *tokens.Registry
	fallback  *FallbackTable
	tolerance time.Duration
	logger    zerolog.Logger
	group     singleflight.Group
}

// NewResolver creates a resolver. Returns ErrInvalidTolerance for a tolerance outside [5m, 60m].
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Quotes == nil || opts.Tokens == nil {
		return nil, errors.New("pricing: quote store and token registry are required")
	}
	tol := opts.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	if tol < MinTolerance || tol > MaxTolerance {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTolerance, tol)
	}
	fb := opts.Fallback
	if fb == nil {
		fb = DefaultFallbackTable()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Resolver{
		quotes:    opts.Quotes,
		source:    opts.Source,
		tokens:    opts.Tokens,
		fallback:  fb,
		tolerance: tol,
		logger:    logger.With().Str("component", "pricing").Logger(),
	}, nil
}

// Resolve returns the USD price of one whole token at ts (ms) and where it came from.
// It never fails hard: when nothing answers it returns zero, PriceSourceUnknown and
// an error wrapping ErrPriceUnavailable.
func (r *Resolver) Resolve(ctx context.Context, token string, ts int64, network string) (decimal.Decimal, domain.PriceSource, error) {
	if network != domain.NetworkSolana {
		token = strings.ToLower(token)
	}
	if domain.IsNative(token) {
		token = domain.NativeToken
	}

	price, source, err := r.resolve(ctx, token, ts, network)
	observability.RecordPriceLookup(source.String())
	return price, source, err
}

func (r *Resolver) resolve(ctx context.Context, token string, ts int64, network string) (decimal.Decimal, domain.PriceSource, error) {
	// 1. Stablecoins are pegged
	if r.tokens.IsStablecoin(network, token) {
		return decimal.NewFromInt(1), domain.PriceSourceStable, nil
	}

	// 2. Cached quote within tolerance
	q, err := r.quotes.GetNearest(ctx, network, token, ts, r.tolerance.Milliseconds())
	switch {
	case err == nil:
		return q.PriceUSD, domain.PriceSourceCache, nil
	case !errors.Is(err, storage.ErrNotFound):
		r.logger.Warn().Err(err).Str("token", token).Msg("quote cache lookup failed")
	}

	// 3. External source
	if r.source != nil {
		price, err := r.fetchExternal(ctx, token, ts, network)
		if err == nil {
			return price, domain.PriceSourceExternal, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, domain.PriceSourceUnknown, fmt.Errorf("%w: %v", ErrPriceUnavailable, ctx.Err())
		}
		r.logger.Debug().Err(err).Str("token", token).Str("network", network).Int64("ts", ts).
			Msg("external price lookup failed")
	}

	// 4. Fallback table
	if p, ok := r.fallback.Lookup(r.tokens.Symbol(network, token), ts); ok {
		return p, domain.PriceSourceFallback, nil
	}

	return decimal.Zero, domain.PriceSourceUnknown,
		fmt.Errorf("%w: %s on %s at %d", ErrPriceUnavailable, token, network, ts)
}

// fetchExternal prices the tolerance bucket holding ts. The bucket start is fetched once
// among concurrent callers and appended to the quote cache, where it answers every
// timestamp of the bucket.
func (r *Resolver) fetchExternal(ctx context.Context, token string, ts int64, network string) (decimal.Decimal, error) {
	bucket := r.bucketStart(ts)
	key := fmt.Sprintf("%s|%s|%d", network, token, bucket)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		price, err := r.source.HistoricalPrice(ctx, tokens.PriceKey(network, token), bucket)
		if err != nil {
			return nil, err
		}

		q := &domain.PriceQuote{
			Network:   network,
			Token:     token,
			Timestamp: bucket,
			PriceUSD:  price,
			Source:    domain.PriceSourceExternal,
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := r.quotes.Insert(ctx, q); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Warn().Err(err).Str("token", token).Msg("cache quote")
		}
		return price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// bucketStart floors ts to the tolerance grid.
func (r *Resolver) bucketStart(ts int64) int64 {
	width := r.tolerance.Milliseconds()
	b := ts - ts%width
	if ts < 0 && ts%width != 0 {
		b -= width
	}
	return b
}

var _ PriceLookup = (*Resolver)(nil)
