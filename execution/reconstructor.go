package execution

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perps-trading-core/chain"
	"perps-trading-core/markets"
	"perps-trading-core/metrics"
	"perps-trading-core/tradecalc"
	"perps-trading-core/units"
)

// DefaultPositionPage is how many raw position slots are read per account.
const DefaultPositionPage int64 = 100

// PositionLister is satisfied by *chain.PositionReader.
type PositionLister interface {
	AccountPositions(ctx context.Context, account common.Address, start, end int64) ([]chain.RawPosition, error)
}

// Reconstructor turns raw Reader tuples into valued positions.
type Reconstructor struct {
	reader   PositionLister
	prices   PriceProvider
	pageSize int64
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewReconstructor(reader PositionLister, prices PriceProvider, pageSize int64, m *metrics.Metrics, logger *zap.Logger) *Reconstructor {
	if pageSize <= 0 {
		pageSize = DefaultPositionPage
	}
	return &Reconstructor{
		reader:   reader,
		prices:   prices,
		pageSize: pageSize,
		metrics:  m,
		logger:   logger.With(zap.String("component", "reconstructor")),
	}
}

type openSlot struct {
	raw    chain.RawPosition
	market markets.Market
}

// Positions returns the account's open positions in tracked markets. Read failures
// and missing prices degrade to fewer (or no) positions, never to an error.
func (r *Reconstructor) Positions(ctx context.Context, account common.Address) []Position {
	raw, err := r.reader.AccountPositions(ctx, account, 0, r.pageSize)
	if err != nil {
		r.logger.Warn("position read failed",
			zap.String("account", account.Hex()), zap.Error(err))
		r.metrics.PositionRead(0, err)
		return []Position{}
	}

	var open []openSlot
	for _, p := range raw {
		m, ok := markets.ByMarketToken(p.Addresses.Market)
		if !ok {
			continue
		}
		if p.Numbers.SizeInUsd == nil || p.Numbers.SizeInUsd.Sign() == 0 {
			continue
		}
		open = append(open, openSlot{raw: p, market: m})
	}

	prices := r.markPrices(ctx, open)

	positions := make([]Position, 0, len(open))
	for _, slot := range open {
		mark, ok := prices[slot.market.MarketToken]
		if !ok {
			continue
		}
		pos, ok := r.position(slot, mark)
		if !ok {
			continue
		}
		positions = append(positions, pos)
	}

	r.metrics.PositionRead(len(positions), nil)
	r.logger.Debug("positions reconstructed",
		zap.String("account", account.Hex()),
		zap.Int("raw", len(raw)),
		zap.Int("open", len(positions)))
	return positions
}

// markPrices fetches one price per distinct market concurrently. Markets whose price
// cannot be obtained are absent from the result.
func (r *Reconstructor) markPrices(ctx context.Context, open []openSlot) map[common.Address]decimal.Decimal {
	var distinct []markets.Market
	seen := make(map[common.Address]bool)
	for _, slot := range open {
		if !seen[slot.market.MarketToken] {
			seen[slot.market.MarketToken] = true
			distinct = append(distinct, slot.market)
		}
	}

	results := make([]decimal.Decimal, len(distinct))
	var wg sync.WaitGroup
	for i, m := range distinct {
		wg.Add(1)
		go func(i int, m markets.Market) {
			defer wg.Done()
			price, err := r.prices.Price(ctx, m)
			if err != nil {
				r.logger.Warn("skipping positions without a price",
					zap.String("market", m.Symbol), zap.Error(err))
				return
			}
			results[i] = price
		}(i, m)
	}
	wg.Wait()

	out := make(map[common.Address]decimal.Decimal, len(distinct))
	for i, m := range distinct {
		if results[i].IsPositive() {
			out[m.MarketToken] = results[i]
		}
	}
	return out
}

func (r *Reconstructor) position(slot openSlot, mark decimal.Decimal) (Position, bool) {
	p, m := slot.raw, slot.market

	collateralDecimals, ok := m.CollateralDecimals(p.Addresses.CollateralToken)
	if !ok {
		r.logger.Warn("unexpected collateral token",
			zap.String("market", m.Symbol),
			zap.String("token", p.Addresses.CollateralToken.Hex()))
		return Position{}, false
	}

	size := units.ProtocolToUSD(p.Numbers.SizeInUsd)
	sizeInTokens := units.TokensFromFixed(p.Numbers.SizeInTokens, m.IndexDecimals)
	entry := mark
	if sizeInTokens.IsPositive() {
		entry = size.Div(sizeInTokens)
	}

	collateralAmount := units.TokensFromFixed(p.Numbers.CollateralAmount, collateralDecimals)
	collateral := collateralAmount
	if p.Addresses.CollateralToken != m.ShortToken {
		collateral = collateralAmount.Mul(mark)
	}

	isLong := p.Flags.IsLong
	leverage := tradecalc.Leverage(size, collateral)
	pnl := tradecalc.PnL(isLong, entry, mark, size)

	return Position{
		Market:           m.Symbol,
		MarketToken:      m.MarketToken,
		Side:             SideFromLong(isLong),
		Size:             size,
		SizeInTokens:     sizeInTokens,
		Collateral:       collateral,
		CollateralToken:  p.Addresses.CollateralToken,
		CollateralAmount: collateralAmount,
		EntryPrice:       entry,
		MarkPrice:        mark,
		Leverage:         leverage,
		PnL:              pnl,
		PnLPercent:       tradecalc.PnLPercent(pnl, collateral),
		LiquidationPrice: tradecalc.LiquidationPrice(isLong, entry, leverage, tradecalc.DefaultMaintenanceMargin),
	}, true
}
