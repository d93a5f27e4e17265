package domain

// Network identifiers.
const (
	NetworkEthereum  = "ethereum"
	NetworkPolygon   = "polygon"
	NetworkArbitrum  = "arbitrum"
	NetworkOptimism  = "optimism"
	NetworkBase      = "base"
	NetworkBSC       = "bsc"
	NetworkAvalanche = "avalanche"
	NetworkSolana    = "solana"
)

// NativeToken is the pseudo-address used for a network's native asset
// (ETH, MATIC, BNB...) wherever a token address is expected.
const NativeToken = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// ZeroAddress is the mint/burn counterparty of ERC-20 transfers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NativeDecimals is the decimals of every supported EVM native asset.
const NativeDecimals = 18

// IsNative reports whether token refers to the native asset.
func IsNative(token string) bool {
	return token == NativeToken || token == ""
}
