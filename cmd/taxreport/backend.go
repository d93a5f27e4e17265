package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/config"
	"chain-tax-lab/internal/pricing"
	"chain-tax-lab/internal/report"
	"chain-tax-lab/internal/storage"
	chstore "chain-tax-lab/internal/storage/clickhouse"
	"chain-tax-lab/internal/storage/memory"
	pgstore "chain-tax-lab/internal/storage/postgres"
	"chain-tax-lab/internal/tokens"
)

// backend holds the stores selected by configuration.
type backend struct {
	Jobs        storage.JobStore
	Events      storage.EventStore
	Quotes      storage.PriceQuoteStore
	NewLotStore func(jobID string) storage.LotStore
	Facts       report.FactSink // nil unless a ClickHouse DSN is configured

	closers []func()
}

// Close releases every connection opened by openBackend.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the configured storage. PostgreSQL holds jobs, events, quotes and lots.
// ClickHouse, when configured, takes over the price quote history and receives event facts.
func openBackend(ctx context.Context, c *config.Config) (*backend, error) {
	b := &backend{}

	switch c.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, c.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.Jobs = pgstore.NewJobStore(pool)
		b.Events = pgstore.NewEventStore(pool)
		b.Quotes = pgstore.NewPriceQuoteStore(pool)
		b.NewLotStore = func(jobID string) storage.LotStore { return pgstore.NewLotStore(pool, jobID) }
	default:
		b.Jobs = memory.NewJobStore()
		b.Events = memory.NewEventStore()
		b.Quotes = memory.NewPriceQuoteStore()
		b.NewLotStore = func(string) storage.LotStore { return memory.NewLotStore() }
	}

	if c.Storage.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, c.Storage.ClickHouseDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Msg("close clickhouse")
			}
		})
		b.attachClickHouse(conn)
	}
	return b, nil
}

// attachClickHouse routes the price quote history and the event facts to ClickHouse.
func (b *backend) attachClickHouse(conn *chstore.Conn) {
	b.Quotes = chstore.NewPriceQuoteStore(conn)
	b.Facts = chstore.NewEventFactStore(conn)
}

// newChainClient returns the JSON-RPC client, or nil when no endpoint is configured.
func newChainClient(c *config.Config) *chain.HTTPClient {
	if c.RPC.URL == "" {
		return nil
	}
	return chain.NewHTTPClient(c.RPC.URL, c.Network,
		chain.WithTimeout(c.RPC.Timeout),
		chain.WithMaxRetries(c.RPC.MaxRetries),
	)
}

// newTokenRegistry reads unknown decimals from chain when a client is available.
func newTokenRegistry(client *chain.HTTPClient) *tokens.Registry {
	opts := tokens.Options{Logger: &log.Logger}
	if client != nil {
		opts.Reader = client
	}
	return tokens.NewRegistry(opts)
}

// newResolver builds the cache-first price resolver over the configured quote store.
func newResolver(c *config.Config, quotes storage.PriceQuoteStore, reg *tokens.Registry) (*pricing.Resolver, error) {
	source := pricing.NewLlamaSource(c.Prices.BaseURL,
		pricing.WithRateLimit(c.Prices.RatePerSec, c.Prices.Burst),
		pricing.WithSourceTimeout(c.Prices.Timeout),
	)
	return pricing.NewResolver(pricing.Options{
		Quotes:    quotes,
		Source:    source,
		Tokens:    reg,
		Tolerance: c.Prices.CacheTolerance,
		Logger:    &log.Logger,
	})
}
