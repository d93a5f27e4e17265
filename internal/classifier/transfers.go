package classifier

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"chain-tax-lab/internal/address"
	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
)

// transfer is a decoded ERC-20 Transfer log.
type transfer struct {
	Token    string
	From     string
	To       string
	Amount   *big.Int
	LogIndex int
}

// parseTransfers decodes ERC-20 Transfer logs in emission order.
// ERC-721 transfers (amount indexed, four topics) and zero amounts are skipped.
func parseTransfers(logs []domain.TxLog) []transfer {
	var out []transfer
	for _, lg := range logs {
		if len(lg.Topics) != 3 || !strings.EqualFold(lg.Topics[0], chain.TransferTopic) {
			continue
		}
		amount := new(big.Int).SetBytes(common.FromHex(lg.Data))
		if amount.Sign() == 0 {
			continue
		}
		out = append(out, transfer{
			Token:    strings.ToLower(lg.Address),
			From:     address.FromTopic(lg.Topics[1]),
			To:       address.FromTopic(lg.Topics[2]),
			Amount:   amount,
			LogIndex: lg.LogIndex,
		})
	}
	return out
}

// isMint reports whether the transfer was minted out of the zero address.
func (t transfer) isMint() bool {
	return t.From == domain.ZeroAddress
}

// tokenGroup collects the transfers of one token in encounter order.
type tokenGroup struct {
	Token     string
	Transfers []transfer
}

// groupByToken groups transfers by token contract, preserving first-seen order.
func groupByToken(transfers []transfer) []tokenGroup {
	var groups []tokenGroup
	index := make(map[string]int)
	for _, t := range transfers {
		i, ok := index[t.Token]
		if !ok {
			i = len(groups)
			index[t.Token] = i
			groups = append(groups, tokenGroup{Token: t.Token})
		}
		groups[i].Transfers = append(groups[i].Transfers, t)
	}
	return groups
}
