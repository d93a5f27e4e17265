// Package chain talks to EVM nodes over JSON-RPC (HTTP) and websocket subscriptions.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned when the node does not know a transaction, receipt or block.
var ErrNotFound = errors.New("not found")

// Client defines the EVM JSON-RPC interface used by ingestion and token metadata.
type Client interface {
	// TransactionByHash retrieves a transaction. Returns ErrNotFound if unknown.
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)

	// TransactionReceipt retrieves a receipt. Returns ErrNotFound if unknown or pending.
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)

	// BlockByNumber retrieves a block header. Returns ErrNotFound if unknown.
	BlockByNumber(ctx context.Context, number int64) (*Block, error)

	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (int64, error)

	// GetLogs retrieves logs matching the filter.
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)

	// TokenDecimals reads ERC-20 decimals() of token.
	TokenDecimals(ctx context.Context, network, token string) (int, error)
}

// Transaction is an eth_getTransactionByHash result.
type Transaction struct {
	Hash        string          `json:"hash"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	From        string          `json:"from"`
	To          *string         `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Input       hexutil.Bytes   `json:"input"`
	Nonce       *hexutil.Uint64 `json:"nonce"`
}

// Receipt is an eth_getTransactionReceipt result.
type Receipt struct {
	TransactionHash   string         `json:"transactionHash"`
	BlockNumber       *hexutil.Big   `json:"blockNumber"`
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Logs              []Log          `json:"logs"`
}

// Log is a receipt or subscription log.
type Log struct {
	Address         string         `json:"address"`
	Topics          []string       `json:"topics"`
	Data            string         `json:"data"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash string         `json:"transactionHash"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
	Removed         bool           `json:"removed"`
}

// Block is the header subset of an eth_getBlockByNumber result.
type Block struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      string         `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"` // Unix seconds
}

// LogFilter selects logs for eth_getLogs and eth_subscribe.
// Topics follow JSON-RPC positional semantics: nil matches anything,
// several values in one position are OR-ed.
type LogFilter struct {
	FromBlock int64 // 0 with ToBlock 0 means latest only
	ToBlock   int64
	Addresses []string
	Topics    [][]string
}

// params renders the filter as a JSON-RPC filter object.
func (f LogFilter) params(withRange bool) map[string]interface{} {
	p := make(map[string]interface{})
	if withRange {
		p["fromBlock"] = hexutil.EncodeUint64(uint64(f.FromBlock))
		if f.ToBlock > 0 {
			p["toBlock"] = hexutil.EncodeUint64(uint64(f.ToBlock))
		} else {
			p["toBlock"] = "latest"
		}
	}
	if len(f.Addresses) > 0 {
		p["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		topics := make([]interface{}, len(f.Topics))
		for i, t := range f.Topics {
			switch len(t) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = t[0]
			default:
				topics[i] = t
			}
		}
		p["topics"] = topics
	}
	return p
}
