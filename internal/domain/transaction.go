package domain

import "math/big"

// RawTransaction is an on-chain transaction as fetched from a node or indexer.
// It is read-only input to classification.
type RawTransaction struct {
	Network        string   // network identifier, e.g. "ethereum"
	Hash           string   // transaction hash, 0x-prefixed lowercase hex
	BlockNumber    int64    // block height
	Timestamp      int64    // block timestamp in milliseconds
	From           string   // sender address
	To             string   // recipient or contract address, empty for contract creation
	Value          *big.Int // native value in wei
	GasUsed        uint64   // gas units consumed
	GasPrice       *big.Int // effective gas price in wei
	MethodSelector string   // first four calldata bytes, 0x-prefixed, empty for plain transfers
	Status         bool     // true if the transaction succeeded
	Logs           []TxLog  // receipt logs in emission order
}

// TxLog is a single receipt log.
type TxLog struct {
	Address  string   // emitting contract
	Topics   []string // topic0 is the event signature hash
	Data     string   // 0x-prefixed hex payload
	LogIndex int      // position within the block
}

// GasFee returns gasUsed × gasPrice in wei.
func (tx *RawTransaction) GasFee() *big.Int {
	if tx.GasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(tx.GasUsed), tx.GasPrice)
}

// NativeValue returns the transferred native value, never nil.
func (tx *RawTransaction) NativeValue() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}
