// Package stub provides an in-memory chain.Client for tests.
package stub

import (
	"context"
	"strings"

	"chain-tax-lab/internal/chain"
)

// RPCClient implements chain.Client for testing.
type RPCClient struct {
	Transactions map[string]*chain.Transaction
	Receipts     map[string]*chain.Receipt
	Blocks       map[int64]*chain.Block
	Logs         []chain.Log
	Decimals     map[string]int
	Latest       int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*chain.Transaction),
		Receipts:     make(map[string]*chain.Receipt),
		Blocks:       make(map[int64]*chain.Block),
		Decimals:     make(map[string]int),
	}
}

// TransactionByHash retrieves a transaction from the stub store.
func (c *RPCClient) TransactionByHash(_ context.Context, hash string) (*chain.Transaction, error) {
	tx, ok := c.Transactions[hash]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return tx, nil
}

// TransactionReceipt retrieves a receipt from the stub store.
func (c *RPCClient) TransactionReceipt(_ context.Context, hash string) (*chain.Receipt, error) {
	r, ok := c.Receipts[hash]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return r, nil
}

// BlockByNumber retrieves a block from the stub store.
func (c *RPCClient) BlockByNumber(_ context.Context, number int64) (*chain.Block, error) {
	b, ok := c.Blocks[number]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return b, nil
}

// BlockNumber returns Latest.
func (c *RPCClient) BlockNumber(_ context.Context) (int64, error) {
	return c.Latest, nil
}

// GetLogs returns stored logs matching the filter's block range, addresses and topics.
func (c *RPCClient) GetLogs(_ context.Context, filter chain.LogFilter) ([]chain.Log, error) {
	var out []chain.Log
	for _, lg := range c.Logs {
		bn := int64(lg.BlockNumber)
		if bn < filter.FromBlock || (filter.ToBlock > 0 && bn > filter.ToBlock) {
			continue
		}
		if len(filter.Addresses) > 0 && !containsFold(filter.Addresses, lg.Address) {
			continue
		}
		if !topicsMatch(filter.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

// TokenDecimals returns Decimals[token] or chain.ErrNotFound.
func (c *RPCClient) TokenDecimals(_ context.Context, _, token string) (int, error) {
	d, ok := c.Decimals[strings.ToLower(token)]
	if !ok {
		return 0, chain.ErrNotFound
	}
	return d, nil
}

// AddTransaction stores a transaction, its receipt and its block.
func (c *RPCClient) AddTransaction(tx *chain.Transaction, r *chain.Receipt, b *chain.Block) {
	c.Transactions[tx.Hash] = tx
	if r != nil {
		c.Receipts[tx.Hash] = r
		c.Logs = append(c.Logs, r.Logs...)
	}
	if b != nil {
		c.Blocks[int64(b.Number)] = b
		if int64(b.Number) > c.Latest {
			c.Latest = int64(b.Number)
		}
	}
}

func topicsMatch(filter [][]string, topics []string) bool {
	for i, want := range filter {
		if len(want) == 0 {
			continue
		}
		if i >= len(topics) || !containsFold(want, topics[i]) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

var _ chain.Client = (*RPCClient)(nil)
