package execution

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"perps-trading-core/markets"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

func SideFromLong(isLong bool) PositionSide {
	if isLong {
		return PositionSideLong
	}
	return PositionSideShort
}

func (s PositionSide) IsLong() bool { return s == PositionSideLong }

// ParseSide accepts "long"/"short" and the "buy"/"sell" aliases.
func ParseSide(s string) (PositionSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return PositionSideLong, nil
	case "short", "sell":
		return PositionSideShort, nil
	}
	return "", fmt.Errorf("%w: side %q", ErrInvalidIntent, s)
}

// Position is an open position reconstructed from on-chain state and valued at the
// current mark price. Every derived field is recomputed per query.
type Position struct {
	Market           string          `json:"market"`
	MarketToken      common.Address  `json:"market_token"`
	Side             PositionSide    `json:"side"`
	Size             decimal.Decimal `json:"size"`
	SizeInTokens     decimal.Decimal `json:"size_in_tokens"`
	Collateral       decimal.Decimal `json:"collateral"`
	CollateralToken  common.Address  `json:"collateral_token"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	Leverage         decimal.Decimal `json:"leverage"`
	PnL              decimal.Decimal `json:"pnl"`
	PnLPercent       decimal.Decimal `json:"pnl_percent"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
}

type IntentKind string

const (
	IntentOpen  IntentKind = "open"
	IntentClose IntentKind = "close"
)

// OrderIntent is a single-use, fully priced trade request. For opens Collateral is
// the USDC deposit and Size the target position size; for closes Collateral is the
// amount to withdraw and Size the amount to reduce, both in USD.
type OrderIntent struct {
	ID              string          `json:"id"`
	Kind            IntentKind      `json:"kind"`
	Side            PositionSide    `json:"side"`
	Market          markets.Market  `json:"market"`
	Account         common.Address  `json:"account"`
	Collateral      decimal.Decimal `json:"collateral"`
	Size            decimal.Decimal `json:"size"`
	Leverage        decimal.Decimal `json:"leverage"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	AcceptablePrice decimal.Decimal `json:"acceptable_price"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OpenRequest asks for a market-increase order sized as Collateral x Leverage.
type OpenRequest struct {
	Market          string
	Side            PositionSide
	Account         common.Address
	Collateral      decimal.Decimal
	Leverage        decimal.Decimal
	SlippagePercent decimal.Decimal
}

// CloseRequest asks for a market-decrease order.
type CloseRequest struct {
	Market          string
	Side            PositionSide
	Account         common.Address
	SizeDelta       decimal.Decimal
	CollateralDelta decimal.Decimal
	SlippagePercent decimal.Decimal
}

// Payload is a ready-to-sign call: send Value wei to To with Data. Calls holds the
// encoded multicall sub-calls in order.
type Payload struct {
	IntentID string         `json:"intent_id"`
	Kind     IntentKind     `json:"kind"`
	To       common.Address `json:"to"`
	Data     []byte         `json:"data"`
	Value    *big.Int       `json:"value"`
	Calls    [][]byte       `json:"calls"`
}
