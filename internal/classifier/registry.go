package classifier

import (
	"strings"

	"chain-tax-lab/internal/domain"
)

// MethodKind is the economic action of a known protocol method.
type MethodKind string

const (
	MethodSwap     MethodKind = "SWAP"
	MethodStake    MethodKind = "STAKE"
	MethodDeposit  MethodKind = "DEPOSIT"
	MethodWithdraw MethodKind = "WITHDRAW"
	MethodClaim    MethodKind = "CLAIM"
	MethodBorrow   MethodKind = "BORROW"
	MethodRepay    MethodKind = "REPAY"
)

// methodCategories maps protocol methods to tax categories.
// Borrow and repay ignore liability accounting: borrowed funds are a transfer in,
// repayment is a disposal of the repaid asset.
var methodCategories = map[MethodKind]domain.Category{
	MethodSwap:     domain.CategoryDisposal,
	MethodStake:    domain.CategoryStaking,
	MethodDeposit:  domain.CategoryDisposal,
	MethodWithdraw: domain.CategoryTransfer,
	MethodClaim:    domain.CategoryTransfer,
	MethodBorrow:   domain.CategoryTransfer,
	MethodRepay:    domain.CategoryDisposal,
}

// Category returns the tax category of a method kind.
func (k MethodKind) Category() (domain.Category, bool) {
	c, ok := methodCategories[k]
	return c, ok
}

// ProtocolEntry describes one known contract and its recognized method selectors.
type ProtocolEntry struct {
	Network string
	Address string                // lowercase contract address
	Name    string                // display name, e.g. "uniswap-v2"
	Methods map[string]MethodKind // 0x-prefixed selector -> kind
}

// Registry looks up known protocol contracts by (network, address).
type Registry struct {
	entries map[string]ProtocolEntry
}

// NewRegistry builds a registry from entries. Later entries replace earlier ones.
func NewRegistry(entries []ProtocolEntry) *Registry {
	r := &Registry{entries: make(map[string]ProtocolEntry, len(entries))}
	for _, e := range entries {
		e.Address = strings.ToLower(e.Address)
		methods := make(map[string]MethodKind, len(e.Methods))
		for sel, kind := range e.Methods {
			methods[strings.ToLower(sel)] = kind
		}
		e.Methods = methods
		r.entries[registryKey(e.Network, e.Address)] = e
	}
	return r
}

// Match returns the entry and method kind when both the contract and the selector are known.
func (r *Registry) Match(network, to, selector string) (ProtocolEntry, MethodKind, bool) {
	if to == "" || selector == "" {
		return ProtocolEntry{}, "", false
	}
	e, ok := r.entries[registryKey(network, strings.ToLower(to))]
	if !ok {
		return ProtocolEntry{}, "", false
	}
	kind, ok := e.Methods[strings.ToLower(selector)]
	if !ok {
		return ProtocolEntry{}, "", false
	}
	return e, kind, true
}

func registryKey(network, address string) string {
	return network + "|" + address
}

// DefaultProtocols returns the built-in protocol table.
func DefaultProtocols() []ProtocolEntry {
	aaveCommon := map[string]MethodKind{
		"0x69328dec": MethodWithdraw, // withdraw(address,uint256,address)
		"0xa415bcad": MethodBorrow,   // borrow(address,uint256,uint256,uint16,address)
		"0x573ade81": MethodRepay,    // repay(address,uint256,uint256,address)
	}
	withAave := func(extra map[string]MethodKind) map[string]MethodKind {
		m := make(map[string]MethodKind, len(aaveCommon)+len(extra))
		for k, v := range aaveCommon {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	return []ProtocolEntry{
		{
			Network: domain.NetworkEthereum,
			Address: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
			Name:    "uniswap-v2",
			Methods: map[string]MethodKind{
				"0x38ed1739": MethodSwap, // swapExactTokensForTokens
				"0x8803dbee": MethodSwap, // swapTokensForExactTokens
				"0x7ff36ab5": MethodSwap, // swapExactETHForTokens
				"0x18cbafe5": MethodSwap, // swapExactTokensForETH
				"0xfb3bdb41": MethodSwap, // swapETHForExactTokens
				"0x4a25d94a": MethodSwap, // swapTokensForExactETH
			},
		},
		{
			Network: domain.NetworkEthereum,
			Address: "0xe592427a0aece92de3edee1f18e0157c05861564",
			Name:    "uniswap-v3",
			Methods: map[string]MethodKind{
				"0x414bf389": MethodSwap, // exactInputSingle
				"0xc04b8d59": MethodSwap, // exactInput
				"0xdb3e2198": MethodSwap, // exactOutputSingle
				"0xf28c0498": MethodSwap, // exactOutput
			},
		},
		{
			Network: domain.NetworkEthereum,
			Address: "0xae7ab96520de3a18e5e111b5eaab095312d7fe84",
			Name:    "lido",
			Methods: map[string]MethodKind{
				"0xa1903eab": MethodStake, // submit(address)
			},
		},
		{
			Network: domain.NetworkEthereum,
			Address: "0x7d2768de32b0b80b7a3454c06bdac94a69ddc7a9",
			Name:    "aave-v2",
			Methods: withAave(map[string]MethodKind{
				"0xe8eda9df": MethodDeposit, // deposit(address,uint256,address,uint16)
			}),
		},
		{
			Network: domain.NetworkEthereum,
			Address: "0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2",
			Name:    "aave-v3",
			Methods: withAave(map[string]MethodKind{
				"0x617ba037": MethodDeposit, // supply(address,uint256,address,uint16)
			}),
		},
		{
			Network: domain.NetworkEthereum,
			Address: "0x090d4613473dee047c3f2706764f49e0821d256e",
			Name:    "uniswap-merkle-distributor",
			Methods: map[string]MethodKind{
				"0x2e7ba6ef": MethodClaim, // claim(uint256,address,uint256,bytes32[])
			},
		},
	}
}
