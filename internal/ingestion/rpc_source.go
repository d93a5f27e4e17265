package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
)

// DefaultBlockChunk is the eth_getLogs block span per request.
const DefaultBlockChunk = 10_000

// RPCSourceOptions configures an RPCSource.
type RPCSourceOptions struct {
	Client     chain.Client
	Network    string
	BlockChunk int64           // default DefaultBlockChunk
	Workers    int             // concurrent hydrations, default 4
	Logger     *zerolog.Logger // defaults to the global logger
}

// RPCSource finds an address's transactions through ERC-20 Transfer logs
// naming it as sender or recipient, then hydrates each transaction.
// Plain native transfers emit no logs and are not found this way.
type RPCSource struct {
	client   chain.Client
	network  string
	chunk    int64
	workers  int
	hydrator *Hydrator
	logger   zerolog.Logger
}

// NewRPCSource creates a new RPC-backed transaction source.
func NewRPCSource(opts RPCSourceOptions) *RPCSource {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "rpc-source").Str("network", opts.Network).Logger()

	chunk := opts.BlockChunk
	if chunk <= 0 {
		chunk = DefaultBlockChunk
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	return &RPCSource{
		client:   opts.Client,
		network:  opts.Network,
		chunk:    chunk,
		workers:  workers,
		hydrator: NewHydrator(opts.Client, opts.Network, logger),
		logger:   logger,
	}
}

// Fetch scans [req.FromBlock, req.ToBlock] in chunks and returns every
// transaction with a Transfer log from or to req.Address.
func (s *RPCSource) Fetch(ctx context.Context, req FetchRequest) ([]*domain.RawTransaction, error) {
	if req.Network != "" && req.Network != s.network {
		return nil, fmt.Errorf("rpc source serves %s, not %s", s.network, req.Network)
	}

	to := req.ToBlock
	if to <= 0 {
		latest, err := s.client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	hashes, err := s.collectHashes(ctx, req.Address, req.FromBlock, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("transactions", len(hashes)).Int64("from_block", req.FromBlock).Int64("to_block", to).Msg("transfer logs scanned")

	txs := make([]*domain.RawTransaction, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			tx, err := s.hydrator.Hydrate(gctx, hash)
			if err != nil {
				return fmt.Errorf("hydrate %s: %w", hash, err)
			}
			txs[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return txs, nil
}

// collectHashes returns the distinct transaction hashes of matching logs in first-seen order.
func (s *RPCSource) collectHashes(ctx context.Context, addr string, from, to int64) ([]string, error) {
	topic := chain.AddressTopic(addr)
	filters := [][][]string{
		{{chain.TransferTopic}, {topic}},
		{{chain.TransferTopic}, nil, {topic}},
	}

	seen := make(map[string]bool)
	var hashes []string
	for start := from; start <= to; start += s.chunk {
		end := min(start+s.chunk-1, to)
		for _, topics := range filters {
			logs, err := s.client.GetLogs(ctx, chain.LogFilter{FromBlock: start, ToBlock: end, Topics: topics})
			if err != nil {
				return nil, fmt.Errorf("get logs [%d, %d]: %w", start, end, err)
			}
			for _, l := range logs {
				h := strings.ToLower(l.TransactionHash)
				if l.Removed || seen[h] {
					continue
				}
				seen[h] = true
				hashes = append(hashes, h)
			}
		}
	}
	return hashes, nil
}
