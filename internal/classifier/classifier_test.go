package classifier

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/idhash"
	"chain-tax-lab/internal/tokens"
)

const (
	user     = "0x1111111111111111111111111111111111111111"
	other    = "0x2222222222222222222222222222222222222222"
	pool     = "0x3333333333333333333333333333333333333333"
	someDapp = "0x4444444444444444444444444444444444444444"

	usdc   = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	uni    = "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
	weth   = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	steth  = "0xae7ab96520de3a18e5e111b5eaab095312d7fe84"
	v2     = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	gasFee = 21_000 * 30_000_000_000
)

func newClassifier() *Classifier {
	return New(Options{Tokens: tokens.NewRegistry(tokens.Options{})})
}

func transferLog(token, from, to string, amount int64, index int) domain.TxLog {
	return domain.TxLog{
		Address:  token,
		Topics:   []string{chain.TransferTopic, chain.AddressTopic(from), chain.AddressTopic(to)},
		Data:     common.BigToHash(big.NewInt(amount)).Hex(),
		LogIndex: index,
	}
}

func newTx(from, to, selector string, value int64, logs ...domain.TxLog) *domain.RawTransaction {
	return &domain.RawTransaction{
		Network:        domain.NetworkEthereum,
		Hash:           "0xabc",
		BlockNumber:    100,
		Timestamp:      1_700_000_000_000,
		From:           from,
		To:             to,
		Value:          big.NewInt(value),
		GasUsed:        21_000,
		GasPrice:       big.NewInt(30_000_000_000),
		MethodSelector: selector,
		Status:         true,
		Logs:           logs,
	}
}

func categories(events []*domain.ClassifiedEvent) []domain.Category {
	out := make([]domain.Category, len(events))
	for i, e := range events {
		out[i] = e.Category()
	}
	return out
}

func TestClassify_KnownRouterSwap(t *testing.T) {
	tx := newTx(user, v2, "0x38ed1739", 0,
		transferLog(usdc, user, pool, 2_000_000_000, 1),
		transferLog(uni, pool, user, 400, 2),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.CategoryDisposal, ev.Category())
	assert.Equal(t, "uniswap-v2", ev.Protocol)
	require.NotNil(t, ev.TokenOut)
	require.NotNil(t, ev.TokenIn)
	assert.Equal(t, usdc, ev.TokenOut.Token)
	assert.Equal(t, "USDC", ev.TokenOut.Symbol)
	assert.Equal(t, 6, ev.TokenOut.Decimals)
	assert.Equal(t, int64(2_000_000_000), ev.TokenOut.Amount.Int64())
	assert.Equal(t, uni, ev.TokenIn.Token)
	assert.True(t, ev.GasPrimary)
	assert.Equal(t, int64(gasFee), ev.GasFeeWei.Int64())
	assert.Equal(t, idhash.ComputeEventID(domain.NetworkEthereum, "0xabc", user, 0), ev.EventID)
}

func TestClassify_LidoStake(t *testing.T) {
	tx := newTx(user, steth, "0xa1903eab", 1_000_000,
		transferLog(steth, domain.ZeroAddress, user, 999_999, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.CategoryStaking, ev.Category())
	assert.Equal(t, "lido", ev.Protocol)
	require.NotNil(t, ev.TokenOut)
	assert.Equal(t, domain.NativeToken, ev.TokenOut.Token)
	assert.Equal(t, int64(1_000_000), ev.TokenOut.Amount.Int64())
	require.NotNil(t, ev.TokenIn)
	assert.Equal(t, steth, ev.TokenIn.Token)
}

func TestClassify_KnownContractUnknownSelectorUsesHeuristics(t *testing.T) {
	tx := newTx(user, v2, "0xdeadbeef", 0,
		transferLog(usdc, user, pool, 5, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryTransfer, events[0].Category())
	assert.Empty(t, events[0].Protocol)
}

func TestClassify_DirectPairIsDisposal(t *testing.T) {
	tx := newTx(user, someDapp, "0x12345678", 0,
		transferLog(usdc, user, pool, 100, 0),
		transferLog(uni, pool, user, 7, 1),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryDisposal, events[0].Category())
	assert.Equal(t, usdc, events[0].TokenOut.Token)
	assert.Equal(t, uni, events[0].TokenIn.Token)
}

func TestClassify_MintIsAirdrop(t *testing.T) {
	tx := newTx(user, someDapp, "0x4e71d92d", 0,
		transferLog(uni, domain.ZeroAddress, user, 400, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryAirdrop, events[0].Category())
	assert.Nil(t, events[0].TokenOut)
	assert.True(t, events[0].GasPrimary)
}

func TestClassify_ReceivedFromOtherSenderIsAirdropWithoutGas(t *testing.T) {
	tx := newTx(other, uni, "0xa9059cbb", 0,
		transferLog(uni, other, user, 50, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.CategoryAirdrop, ev.Category())
	assert.False(t, ev.GasPrimary)
	assert.Equal(t, 0, ev.GasFeeWei.Sign())
}

func TestClassify_UnpairedOutflowIsTransfer(t *testing.T) {
	tx := newTx(user, usdc, "0xa9059cbb", 0,
		transferLog(usdc, user, other, 1_000_000, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryTransfer, events[0].Category())
	assert.Equal(t, usdc, events[0].TokenOut.Token)
}

func TestClassify_NativeValuePairsWithInflow(t *testing.T) {
	tx := newTx(user, someDapp, "0x12345678", 5_000,
		transferLog(uni, pool, user, 10, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.CategoryDisposal, ev.Category())
	assert.Equal(t, domain.NativeToken, ev.TokenOut.Token)
	assert.Equal(t, "ETH", ev.TokenOut.Symbol)
	assert.Equal(t, int64(5_000), ev.TokenOut.Amount.Int64())
	assert.Equal(t, uni, ev.TokenIn.Token)
}

func TestClassify_MultipleLegs(t *testing.T) {
	tx := newTx(user, someDapp, "0x12345678", 0,
		transferLog(usdc, user, pool, 100, 0),
		transferLog(uni, pool, user, 7, 1),
		transferLog(weth, pool, user, 3, 2),
		transferLog(uni, domain.ZeroAddress, user, 1, 3),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	assert.Equal(t, []domain.Category{
		domain.CategoryAirdrop,  // mint
		domain.CategoryDisposal, // usdc -> uni
		domain.CategoryAirdrop,  // unpaired weth
	}, categories(events))

	ids := map[string]bool{}
	for i, ev := range events {
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, i == 0, ev.GasPrimary)
		assert.Equal(t, int64(gasFee), ev.GasFeeWei.Int64())
		ids[ev.EventID] = true
	}
	assert.Len(t, ids, 3)
}

func TestClassify_ProxySwap(t *testing.T) {
	tx := newTx(user, someDapp, "0x12345678", 0,
		transferLog(usdc, pool, someDapp, 100, 0),
		transferLog(uni, pool, other, 7, 1),
		transferLog(uni, other, someDapp, 6, 2),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.CategoryDisposal, ev.Category())
	assert.Equal(t, usdc, ev.TokenOut.Token)
	assert.Equal(t, int64(100), ev.TokenOut.Amount.Int64())
	assert.Equal(t, uni, ev.TokenIn.Token)
	assert.Equal(t, int64(6), ev.TokenIn.Amount.Int64())
}

func TestClassify_ProxySingleToken(t *testing.T) {
	tx := newTx(user, someDapp, "0x12345678", 0,
		transferLog(usdc, pool, someDapp, 100, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryTransfer, events[0].Category())
	assert.Equal(t, "interaction via proxy", events[0].Note)
}

func TestClassify_SelfTransferIsNotProxy(t *testing.T) {
	tx := newTx(user, usdc, "0xa9059cbb", 0,
		transferLog(usdc, user, user, 100, 0),
	)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryDeduction, events[0].Category())
	assert.Nil(t, events[0].TokenIn)
	assert.Nil(t, events[0].TokenOut)
}

func TestClassify_NativeTransfer(t *testing.T) {
	c := newClassifier()

	sent := c.Classify(context.Background(), newTx(user, other, "", 10), user)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.CategoryTransfer, sent[0].Category())
	require.NotNil(t, sent[0].TokenOut)
	assert.Nil(t, sent[0].TokenIn)

	received := c.Classify(context.Background(), newTx(other, user, "", 10), user)
	require.Len(t, received, 1)
	assert.Equal(t, domain.CategoryTransfer, received[0].Category())
	require.NotNil(t, received[0].TokenIn)
	assert.Equal(t, 0, received[0].GasFeeWei.Sign())
}

func TestClassify_GasOnly(t *testing.T) {
	c := newClassifier()

	events := c.Classify(context.Background(), newTx(user, usdc, "0x095ea7b3", 0), user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryDeduction, events[0].Category())
	assert.True(t, events[0].GasPrimary)
	assert.Nil(t, events[0].TokenIn)
	assert.Nil(t, events[0].TokenOut)

	assert.Empty(t, c.Classify(context.Background(), newTx(other, usdc, "0x095ea7b3", 0), user))
}

func TestClassify_FailedTransactionIsDeduction(t *testing.T) {
	tx := newTx(user, v2, "0x38ed1739", 0,
		transferLog(usdc, user, pool, 100, 0),
		transferLog(uni, pool, user, 7, 1),
	)
	tx.Status = false

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryDeduction, events[0].Category())
	assert.Equal(t, int64(gasFee), events[0].GasFeeWei.Int64())
}

func TestClassify_IgnoresNonERC20Logs(t *testing.T) {
	nft := transferLog(uni, pool, user, 0, 0)
	nft.Topics = append(nft.Topics, common.BigToHash(big.NewInt(42)).Hex())
	tx := newTx(user, someDapp, "0x12345678", 0, nft)

	events := newClassifier().Classify(context.Background(), tx, user)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryDeduction, events[0].Category())
}

func TestClassify_UserAddressCaseInsensitive(t *testing.T) {
	tx := newTx(user, usdc, "0xa9059cbb", 0,
		transferLog(usdc, user, other, 1, 0),
	)
	events := newClassifier().Classify(context.Background(), tx, strings.ToUpper(user))
	require.Len(t, events, 1)
	assert.Equal(t, user, events[0].Address)
}

func TestRegistry_Match(t *testing.T) {
	r := NewRegistry(DefaultProtocols())

	entry, kind, ok := r.Match(domain.NetworkEthereum, "0x7A250D5630B4CF539739DF2C5DACB4C659F2488D", "0x7FF36AB5")
	require.True(t, ok)
	assert.Equal(t, "uniswap-v2", entry.Name)
	assert.Equal(t, MethodSwap, kind)

	_, _, ok = r.Match(domain.NetworkPolygon, v2, "0x7ff36ab5")
	assert.False(t, ok)
	_, _, ok = r.Match(domain.NetworkEthereum, v2, "")
	assert.False(t, ok)
}

func TestMethodKind_Category(t *testing.T) {
	cases := map[MethodKind]domain.Category{
		MethodSwap:     domain.CategoryDisposal,
		MethodStake:    domain.CategoryStaking,
		MethodDeposit:  domain.CategoryDisposal,
		MethodWithdraw: domain.CategoryTransfer,
		MethodClaim:    domain.CategoryTransfer,
		MethodBorrow:   domain.CategoryTransfer,
		MethodRepay:    domain.CategoryDisposal,
	}
	for kind, want := range cases {
		got, ok := kind.Category()
		require.True(t, ok, kind)
		assert.Equal(t, want, got, kind)
	}
}
