// Package execution turns trade requests into signed-ready router payloads and
// rebuilds an account's open positions from on-chain state.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perps-trading-core/chain"
	"perps-trading-core/marketdata"
	"perps-trading-core/markets"
	"perps-trading-core/metrics"
	"perps-trading-core/tradecalc"
	"perps-trading-core/units"
)

var ErrInvalidIntent = errors.New("invalid order intent")

// DefaultSlippagePercent is used when a request leaves slippage unset.
var DefaultSlippagePercent = decimal.NewFromFloat(0.5)

// maxSlippagePercent rejects requests that would accept any price.
var maxSlippagePercent = decimal.NewFromInt(50)

// PriceProvider returns a price for valuing positions. It may fall back to
// secondary data. *marketdata.Aggregator satisfies it.
type PriceProvider interface {
	Price(ctx context.Context, market markets.Market) (decimal.Decimal, error)
}

// ExecutionPricer returns the oracle price orders are built against.
// *marketdata.Aggregator satisfies it.
type ExecutionPricer interface {
	ExecutionPrice(ctx context.Context, market markets.Market) (decimal.Decimal, error)
}

type BuilderConfig struct {
	ExchangeRouter common.Address
	OrderVault     common.Address
	// ExecutionFee is the native amount in wei attached to every order for the keeper.
	ExecutionFee    *big.Int
	DefaultSlippage decimal.Decimal
}

// Builder prices order intents and encodes them into router multicall payloads.
// It never signs or sends anything.
type Builder struct {
	config  BuilderConfig
	prices  ExecutionPricer
	book    *IntentBook
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewBuilder(config BuilderConfig, prices ExecutionPricer, book *IntentBook, m *metrics.Metrics, logger *zap.Logger) (*Builder, error) {
	if config.ExchangeRouter == (common.Address{}) {
		return nil, errors.New("exchange router address is required")
	}
	if config.OrderVault == (common.Address{}) {
		return nil, errors.New("order vault address is required")
	}
	if config.ExecutionFee == nil || config.ExecutionFee.Sign() <= 0 {
		return nil, errors.New("execution fee must be positive")
	}
	if !config.DefaultSlippage.IsPositive() {
		config.DefaultSlippage = DefaultSlippagePercent
	}
	if book == nil {
		book = NewIntentBook(DefaultIntentTTL)
	}
	return &Builder{
		config:  config,
		prices:  prices,
		book:    book,
		metrics: m,
		logger:  logger.With(zap.String("component", "builder")),
		now:     time.Now,
	}, nil
}

// ExecutionFee returns a copy of the fee attached to every payload.
func (b *Builder) ExecutionFee() *big.Int {
	return new(big.Int).Set(b.config.ExecutionFee)
}

// NewOpenIntent validates an open request, prices it and registers the intent.
func (b *Builder) NewOpenIntent(ctx context.Context, req OpenRequest) (OrderIntent, error) {
	market, err := b.resolve(req.Market, req.Side, req.Account)
	if err != nil {
		return OrderIntent{}, err
	}
	if !req.Collateral.IsPositive() {
		return OrderIntent{}, fmt.Errorf("%w: collateral must be positive", ErrInvalidIntent)
	}
	if err := tradecalc.CheckLeverage(req.Leverage, market.MaxLeverage); err != nil {
		return OrderIntent{}, err
	}
	slippage, err := b.slippage(req.SlippagePercent)
	if err != nil {
		return OrderIntent{}, err
	}

	price, err := b.price(ctx, market)
	if err != nil {
		return OrderIntent{}, err
	}

	intent := OrderIntent{
		ID:              uuid.NewString(),
		Kind:            IntentOpen,
		Side:            req.Side,
		Market:          market,
		Account:         req.Account,
		Collateral:      req.Collateral,
		Size:            req.Collateral.Mul(req.Leverage),
		Leverage:        req.Leverage,
		SlippagePercent: slippage,
		MarkPrice:       price,
		AcceptablePrice: tradecalc.AcceptablePrice(price, req.Side.IsLong(), slippage, false),
		CreatedAt:       b.now(),
	}
	b.book.Add(intent)
	return intent, nil
}

// NewCloseIntent validates a close request, prices it with the reversed slippage
// bias and registers the intent.
func (b *Builder) NewCloseIntent(ctx context.Context, req CloseRequest) (OrderIntent, error) {
	market, err := b.resolve(req.Market, req.Side, req.Account)
	if err != nil {
		return OrderIntent{}, err
	}
	if req.SizeDelta.IsNegative() || req.CollateralDelta.IsNegative() {
		return OrderIntent{}, fmt.Errorf("%w: negative close amount", ErrInvalidIntent)
	}
	if req.SizeDelta.IsZero() && req.CollateralDelta.IsZero() {
		return OrderIntent{}, fmt.Errorf("%w: nothing to close", ErrInvalidIntent)
	}
	slippage, err := b.slippage(req.SlippagePercent)
	if err != nil {
		return OrderIntent{}, err
	}

	price, err := b.price(ctx, market)
	if err != nil {
		return OrderIntent{}, err
	}

	intent := OrderIntent{
		ID:              uuid.NewString(),
		Kind:            IntentClose,
		Side:            req.Side,
		Market:          market,
		Account:         req.Account,
		Collateral:      req.CollateralDelta,
		Size:            req.SizeDelta,
		SlippagePercent: slippage,
		MarkPrice:       price,
		AcceptablePrice: tradecalc.AcceptablePrice(price, req.Side.IsLong(), slippage, true),
		CreatedAt:       b.now(),
	}
	b.book.Add(intent)
	return intent, nil
}

// BuildOpen encodes sendWnt, sendTokens and a MarketIncrease createOrder into one
// multicall. Collateral reaches the vault through sendTokens, so the order's
// initialCollateralDeltaAmount is always zero.
func (b *Builder) BuildOpen(intent OrderIntent) (Payload, error) {
	payload, err := b.buildOpen(intent)
	if err != nil {
		b.metrics.PayloadRejected(string(IntentOpen))
		return Payload{}, err
	}
	return payload, nil
}

func (b *Builder) buildOpen(intent OrderIntent) (Payload, error) {
	if intent.Kind != IntentOpen {
		return Payload{}, fmt.Errorf("%w: kind %q is not open", ErrInvalidIntent, intent.Kind)
	}
	if err := b.validate(intent); err != nil {
		return Payload{}, err
	}

	collateral := units.CollateralToFixed(intent.Collateral)
	if collateral.Sign() <= 0 {
		return Payload{}, fmt.Errorf("%w: collateral %s rounds to zero", ErrInvalidIntent, intent.Collateral)
	}
	size := units.USDToProtocol(intent.Size)
	if size.Sign() <= 0 {
		return Payload{}, fmt.Errorf("%w: size must be positive", ErrInvalidIntent)
	}

	sendWnt, err := chain.EncodeSendWnt(b.config.OrderVault, b.config.ExecutionFee)
	if err != nil {
		return Payload{}, fmt.Errorf("encode sendWnt: %w", err)
	}
	sendTokens, err := chain.EncodeSendTokens(intent.Market.ShortToken, b.config.OrderVault, collateral)
	if err != nil {
		return Payload{}, fmt.Errorf("encode sendTokens: %w", err)
	}
	createOrder, err := chain.EncodeCreateOrder(b.orderParams(intent, chain.OrderTypeMarketIncrease, size, big.NewInt(0)))
	if err != nil {
		return Payload{}, fmt.Errorf("encode createOrder: %w", err)
	}

	return b.finish(intent, [][]byte{sendWnt, sendTokens, createOrder})
}

// BuildClose encodes sendWnt and a MarketDecrease createOrder. The withdrawal is
// carried in initialCollateralDeltaAmount; no tokens are sent.
func (b *Builder) BuildClose(intent OrderIntent) (Payload, error) {
	payload, err := b.buildClose(intent)
	if err != nil {
		b.metrics.PayloadRejected(string(IntentClose))
		return Payload{}, err
	}
	return payload, nil
}

func (b *Builder) buildClose(intent OrderIntent) (Payload, error) {
	if intent.Kind != IntentClose {
		return Payload{}, fmt.Errorf("%w: kind %q is not close", ErrInvalidIntent, intent.Kind)
	}
	if err := b.validate(intent); err != nil {
		return Payload{}, err
	}

	size := units.USDToProtocol(intent.Size)
	withdraw := units.CollateralToFixed(intent.Collateral)
	if size.Sign() < 0 || withdraw.Sign() < 0 {
		return Payload{}, fmt.Errorf("%w: negative close amount", ErrInvalidIntent)
	}
	if size.Sign() == 0 && withdraw.Sign() == 0 {
		return Payload{}, fmt.Errorf("%w: nothing to close", ErrInvalidIntent)
	}

	sendWnt, err := chain.EncodeSendWnt(b.config.OrderVault, b.config.ExecutionFee)
	if err != nil {
		return Payload{}, fmt.Errorf("encode sendWnt: %w", err)
	}
	createOrder, err := chain.EncodeCreateOrder(b.orderParams(intent, chain.OrderTypeMarketDecrease, size, withdraw))
	if err != nil {
		return Payload{}, fmt.Errorf("encode createOrder: %w", err)
	}

	return b.finish(intent, [][]byte{sendWnt, createOrder})
}

func (b *Builder) orderParams(intent OrderIntent, orderType chain.OrderType, size, collateralDelta *big.Int) chain.CreateOrderParams {
	return chain.CreateOrderParams{
		Addresses: chain.CreateOrderAddresses{
			Receiver:               intent.Account,
			Market:                 intent.Market.MarketToken,
			InitialCollateralToken: intent.Market.ShortToken,
			SwapPath:               []common.Address{},
		},
		Numbers: chain.CreateOrderNumbers{
			SizeDeltaUsd:                 size,
			InitialCollateralDeltaAmount: collateralDelta,
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              units.PriceToProtocol(intent.AcceptablePrice, intent.Market.IndexDecimals),
			ExecutionFee:                 new(big.Int).Set(b.config.ExecutionFee),
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
		},
		OrderType:                uint8(orderType),
		DecreasePositionSwapType: chain.DecreasePositionSwapNoSwap,
		IsLong:                   intent.Side.IsLong(),
	}
}

// finish wraps the sub-calls in a multicall and consumes the intent. Nothing is
// consumed if encoding fails.
func (b *Builder) finish(intent OrderIntent, calls [][]byte) (Payload, error) {
	data, err := chain.EncodeMulticall(calls)
	if err != nil {
		return Payload{}, fmt.Errorf("encode multicall: %w", err)
	}
	if err := b.book.Consume(intent.ID); err != nil {
		return Payload{}, err
	}

	b.metrics.PayloadBuilt(string(intent.Kind))
	b.logger.Info("order payload built",
		zap.String("intent_id", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.String("market", intent.Market.Symbol),
		zap.String("side", string(intent.Side)),
		zap.String("size_usd", intent.Size.String()),
		zap.String("acceptable_price", intent.AcceptablePrice.String()),
		zap.Int("calls", len(calls)),
	)

	return Payload{
		IntentID: intent.ID,
		Kind:     intent.Kind,
		To:       b.config.ExchangeRouter,
		Data:     data,
		Value:    new(big.Int).Set(b.config.ExecutionFee),
		Calls:    calls,
	}, nil
}

// validate rejects intents that must never reach the encoder: unknown markets, an
// empty receiver or a missing price. The intent must also still be usable.
func (b *Builder) validate(intent OrderIntent) error {
	if _, ok := markets.ByMarketToken(intent.Market.MarketToken); !ok {
		return fmt.Errorf("%w: %s", markets.ErrUnknownMarket, intent.Market.MarketToken.Hex())
	}
	if intent.Account == (common.Address{}) {
		return fmt.Errorf("%w: account is required", ErrInvalidIntent)
	}
	if intent.Side != PositionSideLong && intent.Side != PositionSideShort {
		return fmt.Errorf("%w: side %q", ErrInvalidIntent, intent.Side)
	}
	if !intent.MarkPrice.IsPositive() {
		return fmt.Errorf("%w for %s", marketdata.ErrPriceUnavailable, intent.Market.Symbol)
	}
	if units.PriceToProtocol(intent.AcceptablePrice, intent.Market.IndexDecimals).Sign() <= 0 {
		return fmt.Errorf("%w: acceptable price must be positive", ErrInvalidIntent)
	}
	return b.book.Check(intent.ID)
}

func (b *Builder) resolve(symbol string, side PositionSide, account common.Address) (markets.Market, error) {
	market, ok := markets.BySymbol(symbol)
	if !ok {
		return markets.Market{}, fmt.Errorf("%w: %q", markets.ErrUnknownMarket, symbol)
	}
	if side != PositionSideLong && side != PositionSideShort {
		return markets.Market{}, fmt.Errorf("%w: side %q", ErrInvalidIntent, side)
	}
	if account == (common.Address{}) {
		return markets.Market{}, fmt.Errorf("%w: account is required", ErrInvalidIntent)
	}
	return market, nil
}

func (b *Builder) slippage(requested decimal.Decimal) (decimal.Decimal, error) {
	return ResolveSlippage(requested, b.config.DefaultSlippage)
}

// ResolveSlippage applies fallback when requested is zero and rejects negative or
// unbounded values.
func ResolveSlippage(requested, fallback decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case requested.IsNegative():
		return decimal.Zero, fmt.Errorf("%w: negative slippage", ErrInvalidIntent)
	case requested.IsZero():
		return fallback, nil
	case requested.GreaterThanOrEqual(maxSlippagePercent):
		return decimal.Zero, fmt.Errorf("%w: slippage %s%% too large", ErrInvalidIntent, requested)
	}
	return requested, nil
}

func (b *Builder) price(ctx context.Context, market markets.Market) (decimal.Decimal, error) {
	price, err := b.prices.ExecutionPrice(ctx, market)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %s", marketdata.ErrPriceUnavailable, market.Symbol)
	}
	return price, nil
}
