package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"perps-trading-core/chain"
	"perps-trading-core/markets"
	"perps-trading-core/units"
)

var ErrInvalidOraclePrice = errors.New("oracle returned non-positive price")

// OraclePrice is one decoded oracle answer.
type OraclePrice struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// PriceSource is the low-latency per-market price oracle.
type PriceSource interface {
	LatestPrice(ctx context.Context, market markets.Market) (OraclePrice, error)
}

// RoundReader is satisfied by *chain.PriceFeed.
type RoundReader interface {
	LatestRound(ctx context.Context, feed common.Address) (chain.RoundData, error)
}

// ChainlinkOracle reads each market's round-based aggregator feed.
type ChainlinkOracle struct {
	rounds RoundReader
}

func NewChainlinkOracle(rounds RoundReader) *ChainlinkOracle {
	return &ChainlinkOracle{rounds: rounds}
}

func (o *ChainlinkOracle) LatestPrice(ctx context.Context, market markets.Market) (OraclePrice, error) {
	round, err := o.rounds.LatestRound(ctx, market.PriceFeed)
	if err != nil {
		return OraclePrice{}, fmt.Errorf("%s oracle: %w", market.Symbol, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return OraclePrice{}, fmt.Errorf("%s: %w", market.Symbol, ErrInvalidOraclePrice)
	}
	return OraclePrice{
		Price:     units.FromFixedPoint(round.Answer, int32(round.Decimals)),
		UpdatedAt: round.UpdatedAt,
	}, nil
}
