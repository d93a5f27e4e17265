// Package tokens holds per-network token metadata: decimals, symbols and stablecoins.
package tokens

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
)

// DefaultDecimals is used when neither the chain nor the table knows a token.
const DefaultDecimals = 18

// DecimalsReader reads ERC-20 decimals() from chain.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context, network, token string) (int, error)
}

// Token is a static metadata entry.
type Token struct {
	Network  string
	Address  string // lowercase
	Symbol   string
	Decimals int
	Stable   bool // pegged 1:1 to USD
}

// nativeAsset describes a network's native coin.
type nativeAsset struct {
	Symbol  string
	PriceID string // external price key, e.g. coingecko:ethereum
}

var natives = map[string]nativeAsset{
	domain.NetworkEthereum:  {Symbol: "ETH", PriceID: "coingecko:ethereum"},
	domain.NetworkArbitrum:  {Symbol: "ETH", PriceID: "coingecko:ethereum"},
	domain.NetworkOptimism:  {Symbol: "ETH", PriceID: "coingecko:ethereum"},
	domain.NetworkBase:      {Symbol: "ETH", PriceID: "coingecko:ethereum"},
	domain.NetworkPolygon:   {Symbol: "MATIC", PriceID: "coingecko:matic-network"},
	domain.NetworkBSC:       {Symbol: "BNB", PriceID: "coingecko:binancecoin"},
	domain.NetworkAvalanche: {Symbol: "AVAX", PriceID: "coingecko:avalanche-2"},
	domain.NetworkSolana:    {Symbol: "SOL", PriceID: "coingecko:solana"},
}

// DefaultTokens returns the built-in token table.
func DefaultTokens() []Token {
	return []Token{
		{Network: domain.NetworkEthereum, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6, Stable: true},
		{Network: domain.NetworkEthereum, Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Decimals: 6, Stable: true},
		{Network: domain.NetworkEthereum, Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Decimals: 18, Stable: true},
		{Network: domain.NetworkEthereum, Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Symbol: "WBTC", Decimals: 8},
		{Network: domain.NetworkEthereum, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18},
		{Network: domain.NetworkEthereum, Address: "0xae7ab96520de3a18e5e111b5eaab095312d7fe84", Symbol: "stETH", Decimals: 18},
		{Network: domain.NetworkEthereum, Address: "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", Symbol: "UNI", Decimals: 18},
		{Network: domain.NetworkPolygon, Address: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Symbol: "USDC", Decimals: 6, Stable: true},
		{Network: domain.NetworkPolygon, Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Symbol: "USDT", Decimals: 6, Stable: true},
		{Network: domain.NetworkArbitrum, Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Symbol: "USDC", Decimals: 6, Stable: true},
		{Network: domain.NetworkBase, Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Symbol: "USDC", Decimals: 6, Stable: true},
	}
}

// Options configures a Registry.
type Options struct {
	Tokens []Token         // static table, DefaultTokens() if nil
	Reader DecimalsReader  // optional on-chain decimals source
	Logger *zerolog.Logger // defaults to the global logger
}

// Registry resolves token metadata. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Token
	reader DecimalsReader
	memo   *cache.Cache
	logger zerolog.Logger
}

// failedReadTTL bounds how long a failed on-chain read is remembered.
const failedReadTTL = 10 * time.Minute

// NewRegistry creates a registry from opts.
func NewRegistry(opts Options) *Registry {
	table := opts.Tokens
	if table == nil {
		table = DefaultTokens()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	r := &Registry{
		tokens: make(map[string]Token, len(table)),
		reader: opts.Reader,
		memo:   cache.New(cache.NoExpiration, time.Hour),
		logger: logger.With().Str("component", "tokens").Logger(),
	}
	for _, t := range table {
		r.Add(t)
	}
	return r
}

// Add registers or replaces a static token entry.
func (r *Registry) Add(t Token) {
	t.Address = strings.ToLower(t.Address)
	r.mu.Lock()
	r.tokens[key(t.Network, t.Address)] = t
	r.mu.Unlock()
}

func (r *Registry) lookup(network, token string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[key(network, strings.ToLower(token))]
	return t, ok
}

// Decimals returns the token's decimals.
// Native assets are 18. An on-chain read is preferred and memoized;
// on read failure the static table is used, then DefaultDecimals.
func (r *Registry) Decimals(ctx context.Context, network, token string) int {
	if domain.IsNative(token) {
		return domain.NativeDecimals
	}

	k := key(network, strings.ToLower(token))
	if v, ok := r.memo.Get(k); ok {
		if d, ok := v.(int); ok && d >= 0 {
			return d
		}
	} else if r.reader != nil {
		d, err := r.reader.TokenDecimals(ctx, network, token)
		if err == nil && d >= 0 && d <= 36 {
			r.memo.Set(k, d, cache.NoExpiration)
			return d
		}
		r.logger.Debug().Err(err).Str("token", token).Str("network", network).Msg("on-chain decimals unavailable")
		r.memo.Set(k, -1, failedReadTTL)
	}

	if t, ok := r.lookup(network, token); ok {
		return t.Decimals
	}
	return DefaultDecimals
}

// Symbol returns the display symbol, or a shortened address when unknown.
func (r *Registry) Symbol(network, token string) string {
	if domain.IsNative(token) {
		return NativeSymbol(network)
	}
	if t, ok := r.lookup(network, token); ok {
		return t.Symbol
	}
	if len(token) > 10 {
		return token[:10]
	}
	return token
}

// IsStablecoin reports whether token is in the stablecoin set.
func (r *Registry) IsStablecoin(network, token string) bool {
	t, ok := r.lookup(network, token)
	return ok && t.Stable
}

// NativeSymbol returns the native asset symbol of network, "ETH" if unknown.
func NativeSymbol(network string) string {
	if n, ok := natives[network]; ok {
		return n.Symbol
	}
	return "ETH"
}

// PriceKey returns the external price lookup key for token on network.
// Native assets map to their coingecko alias; contracts use network:address.
func PriceKey(network, token string) string {
	if domain.IsNative(token) {
		if n, ok := natives[network]; ok {
			return n.PriceID
		}
	}
	return fmt.Sprintf("%s:%s", network, token)
}

// ToUnits converts a raw integer amount to whole-token units exactly.
func ToUnits(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ValueUSD returns units(raw) × price.
func ValueUSD(raw *big.Int, decimals int, price decimal.Decimal) decimal.Decimal {
	return ToUnits(raw, decimals).Mul(price)
}

func key(network, token string) string {
	return network + "|" + token
}
