package ingestion

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/chain/stub"
)

// addTransfer registers a transaction with one ERC-20 Transfer log and its block.
func addTransfer(c *stub.RPCClient, hash string, block int64, from, to string, amount int64) {
	router := "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	c.AddTransaction(
		&chain.Transaction{
			Hash:        hash,
			BlockNumber: (*hexutil.Big)(big.NewInt(block)),
			From:        from,
			To:          &router,
			Value:       (*hexutil.Big)(big.NewInt(0)),
			GasPrice:    (*hexutil.Big)(big.NewInt(5)),
			Input:       hexutil.Bytes{0x38, 0xed, 0x17, 0x39, 0x00},
		},
		&chain.Receipt{
			TransactionHash:   hash,
			BlockNumber:       (*hexutil.Big)(big.NewInt(block)),
			Status:            1,
			GasUsed:           150000,
			EffectiveGasPrice: (*hexutil.Big)(big.NewInt(7)),
			Logs: []chain.Log{{
				Address:         tokenAddr,
				Topics:          []string{chain.TransferTopic, chain.AddressTopic(from), chain.AddressTopic(to)},
				Data:            common.BigToHash(big.NewInt(amount)).Hex(),
				BlockNumber:     hexutil.Uint64(block),
				TransactionHash: hash,
				LogIndex:        2,
			}},
		},
		&chain.Block{Number: hexutil.Uint64(block), Timestamp: hexutil.Uint64(1_700_000_000 + block*12)},
	)
}

func TestRPCSource_FetchSentAndReceived(t *testing.T) {
	client := stub.NewRPCClient()
	addTransfer(client, "0xaa", 100, userAddr, otherAddr, 5)
	addTransfer(client, "0xbb", 250, otherAddr, userAddr, 7)
	addTransfer(client, "0xcc", 300, otherAddr, "0x3333333333333333333333333333333333333333", 9)

	src := NewRPCSource(RPCSourceOptions{Client: client, Network: "ethereum", BlockChunk: 100})
	txs, err := src.Fetch(context.Background(), FetchRequest{Network: "ethereum", Address: userAddr})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	SortTransactions(txs)
	first := txs[0]
	assert.Equal(t, "0xaa", first.Hash)
	assert.Equal(t, int64(100), first.BlockNumber)
	assert.Equal(t, int64(1_700_001_200_000), first.Timestamp)
	assert.Equal(t, "0x38ed1739", first.MethodSelector)
	assert.Equal(t, big.NewInt(7), first.GasPrice, "effective gas price wins")
	assert.Equal(t, uint64(150000), first.GasUsed)
	assert.True(t, first.Status)
	require.Len(t, first.Logs, 1)
	assert.Equal(t, 2, first.Logs[0].LogIndex)

	assert.Equal(t, "0xbb", txs[1].Hash)
}

func TestRPCSource_BlockRange(t *testing.T) {
	client := stub.NewRPCClient()
	addTransfer(client, "0xaa", 100, userAddr, otherAddr, 5)
	addTransfer(client, "0xbb", 250, otherAddr, userAddr, 7)

	src := NewRPCSource(RPCSourceOptions{Client: client, Network: "ethereum", BlockChunk: 10})
	txs, err := src.Fetch(context.Background(), FetchRequest{Network: "ethereum", Address: userAddr, FromBlock: 200, ToBlock: 260})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xbb", txs[0].Hash)
}

func TestRPCSource_SelfTransferOnce(t *testing.T) {
	client := stub.NewRPCClient()
	addTransfer(client, "0xaa", 100, userAddr, userAddr, 5)

	src := NewRPCSource(RPCSourceOptions{Client: client, Network: "ethereum"})
	txs, err := src.Fetch(context.Background(), FetchRequest{Network: "ethereum", Address: userAddr})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestRPCSource_WrongNetwork(t *testing.T) {
	src := NewRPCSource(RPCSourceOptions{Client: stub.NewRPCClient(), Network: "ethereum"})
	_, err := src.Fetch(context.Background(), FetchRequest{Network: "polygon", Address: userAddr})
	assert.Error(t, err)
}

func TestHydrator_RetriesUntilGivingUp(t *testing.T) {
	client := stub.NewRPCClient()
	h := NewHydrator(client, "ethereum", zerolog.Nop())
	h.retryDelay = time.Millisecond

	_, err := h.Hydrate(context.Background(), "0xmissing")
	assert.True(t, errors.Is(err, chain.ErrNotFound))
}

func TestHydrator_FailedTransaction(t *testing.T) {
	client := stub.NewRPCClient()
	addTransfer(client, "0xaa", 100, userAddr, otherAddr, 5)
	client.Receipts["0xaa"].Status = 0

	tx, err := NewHydrator(client, "ethereum", zerolog.Nop()).Hydrate(context.Background(), "0xaa")
	require.NoError(t, err)
	assert.False(t, tx.Status)
	assert.Equal(t, "ethereum", tx.Network)
}
