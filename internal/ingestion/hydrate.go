package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
)

const (
	maxHydrateRetries = 3
	baseRetryDelay    = 500 * time.Millisecond
)

// Hydrator turns a transaction hash into a RawTransaction from its
// transaction, receipt and block header.
type Hydrator struct {
	client     chain.Client
	network    string
	retryDelay time.Duration
	blocks     *cache.Cache // block number -> timestamp ms
	logger     zerolog.Logger
}

// NewHydrator creates a hydrator for network over client.
func NewHydrator(client chain.Client, network string, logger zerolog.Logger) *Hydrator {
	return &Hydrator{
		client:     client,
		network:    network,
		retryDelay: baseRetryDelay,
		blocks:     cache.New(time.Hour, 10*time.Minute),
		logger:     logger,
	}
}

// Hydrate fetches hash with exponential backoff while the node does not know
// the receipt yet. Other errors are returned at once.
func (h *Hydrator) Hydrate(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxHydrateRetries; attempt++ {
		tx, err := h.hydrate(ctx, hash)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, chain.ErrNotFound) {
			return nil, err
		}
		lastErr = err

		// 500ms, 1s, 2s
		delay := h.retryDelay * time.Duration(1<<attempt)
		h.logger.Debug().Str("tx", hash).Int("attempt", attempt+1).Dur("delay", delay).Msg("transaction not available yet")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (h *Hydrator) hydrate(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	tx, err := h.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	receipt, err := h.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", hash, err)
	}
	if receipt.BlockNumber == nil {
		return nil, fmt.Errorf("receipt %s has no block: %w", hash, chain.ErrNotFound)
	}

	block := receipt.BlockNumber.ToInt().Int64()
	ts, err := h.blockTimestamp(ctx, block)
	if err != nil {
		return nil, err
	}

	return toRawTransaction(h.network, tx, receipt, block, ts), nil
}

// blockTimestamp returns the block time in milliseconds.
func (h *Hydrator) blockTimestamp(ctx context.Context, number int64) (int64, error) {
	key := strconv.FormatInt(number, 10)
	if v, ok := h.blocks.Get(key); ok {
		return v.(int64), nil
	}
	b, err := h.client.BlockByNumber(ctx, number)
	if err != nil {
		return 0, fmt.Errorf("get block %d: %w", number, err)
	}
	ts := int64(b.Timestamp) * 1000
	h.blocks.SetDefault(key, ts)
	return ts, nil
}

func toRawTransaction(network string, tx *chain.Transaction, r *chain.Receipt, block, ts int64) *domain.RawTransaction {
	out := &domain.RawTransaction{
		Network:     network,
		Hash:        strings.ToLower(tx.Hash),
		BlockNumber: block,
		Timestamp:   ts,
		From:        strings.ToLower(tx.From),
		Value:       bigOrZero(tx.Value),
		GasUsed:     uint64(r.GasUsed),
		GasPrice:    bigOrZero(r.EffectiveGasPrice),
		Status:      r.Status == 1,
	}
	if r.EffectiveGasPrice == nil {
		out.GasPrice = bigOrZero(tx.GasPrice)
	}
	if tx.To != nil {
		out.To = strings.ToLower(*tx.To)
	}
	if len(tx.Input) >= 4 {
		out.MethodSelector = hexutil.Encode(tx.Input[:4])
	}
	for _, l := range r.Logs {
		if l.Removed {
			continue
		}
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = strings.ToLower(t)
		}
		out.Logs = append(out.Logs, domain.TxLog{
			Address:  strings.ToLower(l.Address),
			Topics:   topics,
			Data:     l.Data,
			LogIndex: int(l.LogIndex),
		})
	}
	return out
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}
