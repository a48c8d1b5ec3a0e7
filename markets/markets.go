// Package markets holds the static set of tradable markets. The set is built once at
// package initialization and never mutated; callers receive copies.
package markets

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"perps-trading-core/units"
)

var ErrUnknownMarket = errors.New("unknown market")

// USDC is the collateral (short) token for every tracked market.
var USDC = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")

// Market identifies a tradable pair on the protocol.
type Market struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	BaseAsset         string          `json:"base_asset"`
	MarketToken       common.Address  `json:"market_token"`
	IndexToken        common.Address  `json:"index_token"`
	LongToken         common.Address  `json:"long_token"`
	ShortToken        common.Address  `json:"short_token"`
	IndexDecimals     int32           `json:"index_decimals"`
	LongTokenDecimals int32           `json:"long_token_decimals"`
	PriceFeed         common.Address  `json:"price_feed"`
	StatsID           string          `json:"stats_id"`
	MaxLeverage       decimal.Decimal `json:"max_leverage"`
}

var registry = []Market{
	{
		Symbol:            "ETH/USD",
		Name:              "Ethereum",
		BaseAsset:         "ETH",
		MarketToken:       common.HexToAddress("0x70d95587d40A2caf56bd97485aB3Eec10Bee6336"),
		IndexToken:        common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		LongToken:         common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		ShortToken:        USDC,
		IndexDecimals:     18,
		LongTokenDecimals: 18,
		PriceFeed:         common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612"),
		StatsID:           "ethereum",
		MaxLeverage:       decimal.NewFromInt(100),
	},
	{
		Symbol:            "BTC/USD",
		Name:              "Bitcoin",
		BaseAsset:         "BTC",
		MarketToken:       common.HexToAddress("0x47c031236e19d024b42f8AE6780E44A573170703"),
		IndexToken:        common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"),
		LongToken:         common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"),
		ShortToken:        USDC,
		IndexDecimals:     8,
		LongTokenDecimals: 8,
		PriceFeed:         common.HexToAddress("0x6ce185860a4963106506C7d5F7Bd7f1a0f8a0f4d"),
		StatsID:           "bitcoin",
		MaxLeverage:       decimal.NewFromInt(100),
	},
	{
		Symbol:            "ARB/USD",
		Name:              "Arbitrum",
		BaseAsset:         "ARB",
		MarketToken:       common.HexToAddress("0xC25cEf6061Cf5dE5eb761b50E4743c1F5D7E5407"),
		IndexToken:        common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"),
		LongToken:         common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"),
		ShortToken:        USDC,
		IndexDecimals:     18,
		LongTokenDecimals: 18,
		PriceFeed:         common.HexToAddress("0xb2A824043730FE05F3DA2efaFa1CBbe83fa548D6"),
		StatsID:           "arbitrum",
		MaxLeverage:       decimal.NewFromInt(50),
	},
	{
		Symbol:            "LINK/USD",
		Name:              "Chainlink",
		BaseAsset:         "LINK",
		MarketToken:       common.HexToAddress("0x7f1fa204bb700853D36994DA19F830b6Ad18455C"),
		IndexToken:        common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4"),
		LongToken:         common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4"),
		ShortToken:        USDC,
		IndexDecimals:     18,
		LongTokenDecimals: 18,
		PriceFeed:         common.HexToAddress("0x86E53CF1B870786351Da77A57575e79CB55812CB"),
		StatsID:           "chainlink",
		MaxLeverage:       decimal.NewFromInt(50),
	},
}

var byMarketToken = func() map[common.Address]int {
	idx := make(map[common.Address]int, len(registry))
	for i, m := range registry {
		idx[m.MarketToken] = i
	}
	return idx
}()

// All returns a copy of every tracked market in display order.
func All() []Market {
	out := make([]Market, len(registry))
	copy(out, registry)
	return out
}

// BySymbol accepts "ETH/USD", "eth/usd" or the base asset "ETH".
func BySymbol(symbol string) (Market, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, m := range registry {
		if m.Symbol == symbol || m.BaseAsset == symbol {
			return m, true
		}
	}
	return Market{}, false
}

func ByMarketToken(addr common.Address) (Market, bool) {
	i, ok := byMarketToken[addr]
	if !ok {
		return Market{}, false
	}
	return registry[i], true
}

// StatsIDs lists the stats cross-reference ids for all markets, for batched requests.
func StatsIDs() []string {
	ids := make([]string, 0, len(registry))
	for _, m := range registry {
		ids = append(ids, m.StatsID)
	}
	return ids
}

// CollateralDecimals returns the precision of a position's collateral token within
// this market, or false when the token is neither side of the market.
func (m Market) CollateralDecimals(token common.Address) (int32, bool) {
	switch token {
	case m.ShortToken:
		return units.CollateralDecimals, true
	case m.LongToken:
		return m.LongTokenDecimals, true
	}
	return 0, false
}
