package ingestion

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/chain"
)

const (
	userAddr  = "0x1111111111111111111111111111111111111111"
	otherAddr = "0x2222222222222222222222222222222222222222"
	tokenAddr = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

func exportJSON() string {
	return `[
	{"network":"ethereum","hash":"0xAAA","blockNumber":10,"timestamp":1700000000000,
	 "from":"0x1111111111111111111111111111111111111111","to":"0x2222222222222222222222222222222222222222",
	 "value":"1000000000000000000","gasUsed":21000,"gasPrice":"0x3b9aca00"},
	{"network":"ethereum","hash":"0xbbb","blockNumber":20,"timestamp":1700000100000,
	 "from":"0x3333333333333333333333333333333333333333","to":"` + tokenAddr + `",
	 "methodSelector":"0xA9059CBB","status":true,
	 "logs":[{"address":"` + tokenAddr + `","topics":["` + chain.TransferTopic + `","` +
		chain.AddressTopic("0x3333333333333333333333333333333333333333") + `","` + chain.AddressTopic(userAddr) + `"],
	  "data":"0x00000000000000000000000000000000000000000000000000000000000f4240","logIndex":3}]},
	{"network":"ethereum","hash":"0xccc","blockNumber":30,"timestamp":1700000200000,
	 "from":"0x3333333333333333333333333333333333333333","to":"0x4444444444444444444444444444444444444444"},
	{"network":"polygon","hash":"0xddd","blockNumber":40,"timestamp":1700000300000,
	 "from":"0x1111111111111111111111111111111111111111","to":"0x2222222222222222222222222222222222222222","status":false}
]`
}

func TestParseTransactions_FiltersByInvolvement(t *testing.T) {
	txs, err := ParseTransactions([]byte(exportJSON()), FetchRequest{Network: "ethereum", Address: userAddr})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	native := txs[0]
	assert.Equal(t, "0xaaa", native.Hash)
	assert.Equal(t, "1000000000000000000", native.Value.String())
	assert.Equal(t, big.NewInt(1_000_000_000), native.GasPrice)
	assert.True(t, native.Status, "status defaults to success")

	transfer := txs[1]
	assert.Equal(t, "0xa9059cbb", transfer.MethodSelector)
	require.Len(t, transfer.Logs, 1)
	assert.Equal(t, 3, transfer.Logs[0].LogIndex)
	assert.Equal(t, tokenAddr, transfer.Logs[0].Address)
}

func TestParseTransactions_NetworkAndBlockRange(t *testing.T) {
	txs, err := ParseTransactions([]byte(exportJSON()), FetchRequest{Network: "polygon", Address: userAddr})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.False(t, txs[0].Status)

	txs, err = ParseTransactions([]byte(exportJSON()), FetchRequest{Network: "ethereum", Address: userAddr, FromBlock: 15, ToBlock: 25})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "0xbbb", txs[0].Hash)
}

func TestParseTransactions_InvalidAmount(t *testing.T) {
	_, err := ParseTransactions([]byte(`[{"hash":"0x1","value":"-5"}]`), FetchRequest{Network: "ethereum", Address: userAddr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value")
}

func TestParseTransactions_MissingHash(t *testing.T) {
	_, err := ParseTransactions([]byte(`[{"blockNumber":1}]`), FetchRequest{Network: "ethereum", Address: userAddr})
	require.Error(t, err)
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txs.json")
	require.NoError(t, os.WriteFile(path, []byte(exportJSON()), 0o600))

	txs, err := NewFileSource(path).Fetch(context.Background(), FetchRequest{Network: "ethereum", Address: userAddr})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "none.json")).Fetch(context.Background(), FetchRequest{Network: "ethereum"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
