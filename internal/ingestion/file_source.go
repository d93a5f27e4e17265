package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
)

// FileSource reads raw transactions from a JSON export.
// Big integers are decimal strings; timestamps are Unix milliseconds.
//
//	[{"network":"ethereum","hash":"0x..","blockNumber":1,"timestamp":1700000000000,
//	  "from":"0x..","to":"0x..","value":"0","gasUsed":21000,"gasPrice":"1000000000",
//	  "methodSelector":"0x..","status":true,"logs":[{"address":"0x..","topics":[..],"data":"0x..","logIndex":0}]}]
type FileSource struct {
	path string
}

// NewFileSource creates a source over the export at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type fileTransaction struct {
	Network        string    `json:"network"`
	Hash           string    `json:"hash"`
	BlockNumber    int64     `json:"blockNumber"`
	Timestamp      int64     `json:"timestamp"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Value          string    `json:"value"`
	GasUsed        uint64    `json:"gasUsed"`
	GasPrice       string    `json:"gasPrice"`
	MethodSelector string    `json:"methodSelector"`
	Status         *bool     `json:"status"`
	Logs           []fileLog `json:"logs"`
}

type fileLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex int      `json:"logIndex"`
}

// Fetch returns the exported transactions on req.Network within the block range
// that the address sent, received or appears in as an indexed log topic.
func (s *FileSource) Fetch(ctx context.Context, req FetchRequest) ([]*domain.RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read transactions file: %w", err)
	}
	return ParseTransactions(data, req)
}

// ParseTransactions decodes a JSON export and applies req's filters.
// Records without a network are taken to be on req.Network.
func ParseTransactions(data []byte, req FetchRequest) ([]*domain.RawTransaction, error) {
	var records []fileTransaction
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}

	user := strings.ToLower(req.Address)
	topic := chain.AddressTopic(req.Address)

	var out []*domain.RawTransaction
	for i, r := range records {
		tx, err := r.toDomain(req.Network)
		if err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, r.Hash, err)
		}
		if tx.Network != req.Network || !req.inRange(tx.BlockNumber) {
			continue
		}
		if !involves(tx, user, topic) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r fileTransaction) toDomain(defaultNetwork string) (*domain.RawTransaction, error) {
	if r.Hash == "" {
		return nil, fmt.Errorf("missing hash")
	}
	value, err := parseBigField("value", r.Value)
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseBigField("gasPrice", r.GasPrice)
	if err != nil {
		return nil, err
	}

	network := r.Network
	if network == "" {
		network = defaultNetwork
	}
	status := true
	if r.Status != nil {
		status = *r.Status
	}

	tx := &domain.RawTransaction{
		Network:        network,
		Hash:           strings.ToLower(r.Hash),
		BlockNumber:    r.BlockNumber,
		Timestamp:      r.Timestamp,
		From:           strings.ToLower(r.From),
		To:             strings.ToLower(r.To),
		Value:          value,
		GasUsed:        r.GasUsed,
		GasPrice:       gasPrice,
		MethodSelector: strings.ToLower(r.MethodSelector),
		Status:         status,
	}
	for _, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = strings.ToLower(t)
		}
		tx.Logs = append(tx.Logs, domain.TxLog{
			Address:  strings.ToLower(l.Address),
			Topics:   topics,
			Data:     l.Data,
			LogIndex: l.LogIndex,
		})
	}
	return tx, nil
}

func parseBigField(name, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

// involves reports whether the lowercase user address takes part in tx.
func involves(tx *domain.RawTransaction, user, topic string) bool {
	if tx.From == user || tx.To == user {
		return true
	}
	for _, l := range tx.Logs {
		for _, t := range l.Topics[min(1, len(l.Topics)):] {
			if strings.EqualFold(t, topic) {
				return true
			}
		}
	}
	return false
}
