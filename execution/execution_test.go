package execution

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perps-trading-core/chain"
	"perps-trading-core/marketdata"
	"perps-trading-core/markets"
	"perps-trading-core/metrics"
	"perps-trading-core/tradecalc"
)

var (
	testRouter  = common.HexToAddress("0x7C68C7866A64FA2160F78EEaE12217FFbf871fa8")
	testVault   = common.HexToAddress("0x31eF83a530Fde1B38EE9A18093A333D8Bbbc40D5")
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	testFee     = big.NewInt(1_000_000_000_000_000) // 0.001 ETH
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func scaled(v int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), pow10(decimals))
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
}

func newFakePrices(prices map[string]decimal.Decimal) *fakePrices {
	return &fakePrices{prices: prices, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakePrices) Price(ctx context.Context, m markets.Market) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[m.Symbol]++
	if err, ok := f.errs[m.Symbol]; ok {
		return decimal.Zero, err
	}
	return f.prices[m.Symbol], nil
}

func (f *fakePrices) ExecutionPrice(ctx context.Context, m markets.Market) (decimal.Decimal, error) {
	return f.Price(ctx, m)
}

func newTestBuilder(t *testing.T, prices ExecutionPricer) (*Builder, *IntentBook) {
	t.Helper()
	book := NewIntentBook(time.Minute)
	b, err := NewBuilder(BuilderConfig{
		ExchangeRouter: testRouter,
		OrderVault:     testVault,
		ExecutionFee:   testFee,
	}, prices, book, metrics.New(nil), zap.NewNop())
	require.NoError(t, err)
	return b, book
}

func decodePayload(t *testing.T, p Payload) ([]string, [][]byte) {
	t.Helper()
	calls, err := chain.DecodeMulticall(p.Data)
	require.NoError(t, err)
	assert.Equal(t, p.Calls, calls)

	names := make([]string, len(calls))
	for i, c := range calls {
		names[i], err = chain.MethodName(c)
		require.NoError(t, err)
	}
	return names, calls
}

func TestBuilder_OpenLong(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")}))

	intent, err := b.NewOpenIntent(context.Background(), OpenRequest{
		Market:          "ETH/USD",
		Side:            PositionSideLong,
		Account:         testAccount,
		Collateral:      d("100"),
		Leverage:        d("10"),
		SlippagePercent: d("1"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ID)
	assert.True(t, intent.Size.Equal(d("1000")))
	assert.True(t, intent.AcceptablePrice.Equal(d("3030")))

	payload, err := b.BuildOpen(intent)
	require.NoError(t, err)
	assert.Equal(t, testRouter, payload.To)
	assert.Equal(t, testFee, payload.Value)
	assert.Equal(t, IntentOpen, payload.Kind)
	assert.Equal(t, intent.ID, payload.IntentID)

	names, calls := decodePayload(t, payload)
	require.Equal(t, []string{"sendWnt", "sendTokens", "createOrder"}, names)

	receiver, fee, err := chain.DecodeSendWnt(calls[0])
	require.NoError(t, err)
	assert.Equal(t, testVault, receiver)
	assert.Equal(t, testFee, fee)

	token, receiver, amount, err := chain.DecodeSendTokens(calls[1])
	require.NoError(t, err)
	assert.Equal(t, markets.USDC, token)
	assert.Equal(t, testVault, receiver)
	assert.Equal(t, big.NewInt(100_000_000), amount)

	order, err := chain.DecodeCreateOrder(calls[2])
	require.NoError(t, err)
	eth, _ := markets.BySymbol("ETH/USD")
	assert.Equal(t, testAccount, order.Addresses.Receiver)
	assert.Equal(t, common.Address{}, order.Addresses.CallbackContract)
	assert.Equal(t, common.Address{}, order.Addresses.UiFeeReceiver)
	assert.Equal(t, eth.MarketToken, order.Addresses.Market)
	assert.Equal(t, markets.USDC, order.Addresses.InitialCollateralToken)
	assert.Empty(t, order.Addresses.SwapPath)
	assert.Equal(t, 0, order.Numbers.SizeDeltaUsd.Cmp(scaled(1000, 30)))
	assert.Equal(t, 0, order.Numbers.InitialCollateralDeltaAmount.Sign())
	assert.Equal(t, 0, order.Numbers.TriggerPrice.Sign())
	assert.Equal(t, 0, order.Numbers.AcceptablePrice.Cmp(scaled(3030, 12)))
	assert.Equal(t, 0, order.Numbers.ExecutionFee.Cmp(testFee))
	assert.Equal(t, uint8(chain.OrderTypeMarketIncrease), order.OrderType)
	assert.Equal(t, chain.DecreasePositionSwapNoSwap, order.DecreasePositionSwapType)
	assert.True(t, order.IsLong)
	assert.False(t, order.ShouldUnwrapNativeToken)
	assert.Equal(t, [32]byte{}, order.ReferralCode)
}

func TestBuilder_OpenShortBTCPriceConvention(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"BTC/USD": d("65000")}))

	intent, err := b.NewOpenIntent(context.Background(), OpenRequest{
		Market:          "BTC",
		Side:            PositionSideShort,
		Account:         testAccount,
		Collateral:      d("250.5"),
		Leverage:        d("4"),
		SlippagePercent: d("1"),
	})
	require.NoError(t, err)
	assert.True(t, intent.AcceptablePrice.Equal(d("64350")))

	payload, err := b.BuildOpen(intent)
	require.NoError(t, err)
	_, calls := decodePayload(t, payload)
	require.Len(t, calls, 3)

	order, err := chain.DecodeCreateOrder(calls[2])
	require.NoError(t, err)
	assert.False(t, order.IsLong)
	// BTC has 8 index decimals: price * 10^22.
	assert.Equal(t, 0, order.Numbers.AcceptablePrice.Cmp(scaled(64350, 22)))
	assert.Equal(t, 0, order.Numbers.SizeDeltaUsd.Cmp(scaled(1002, 30)))
	assert.Equal(t, 0, order.Numbers.InitialCollateralDeltaAmount.Sign())

	_, _, amount, err := chain.DecodeSendTokens(calls[1])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(250_500_000), amount)
}

func TestBuilder_CloseLong(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")}))

	intent, err := b.NewCloseIntent(context.Background(), CloseRequest{
		Market:          "ETH/USD",
		Side:            PositionSideLong,
		Account:         testAccount,
		SizeDelta:       d("1500"),
		CollateralDelta: d("50"),
		SlippagePercent: d("1"),
	})
	require.NoError(t, err)
	assert.True(t, intent.AcceptablePrice.Equal(d("2970")))

	payload, err := b.BuildClose(intent)
	require.NoError(t, err)
	assert.Equal(t, testFee, payload.Value)

	names, calls := decodePayload(t, payload)
	require.Equal(t, []string{"sendWnt", "createOrder"}, names)

	order, err := chain.DecodeCreateOrder(calls[1])
	require.NoError(t, err)
	assert.Equal(t, uint8(chain.OrderTypeMarketDecrease), order.OrderType)
	assert.Equal(t, big.NewInt(50_000_000), order.Numbers.InitialCollateralDeltaAmount)
	assert.Equal(t, 0, order.Numbers.SizeDeltaUsd.Cmp(scaled(1500, 30)))
	assert.Equal(t, 0, order.Numbers.AcceptablePrice.Cmp(scaled(2970, 12)))
	assert.True(t, order.IsLong)
}

func TestBuilder_CloseShortBiasesUp(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")}))

	intent, err := b.NewCloseIntent(context.Background(), CloseRequest{
		Market:          "ETH/USD",
		Side:            PositionSideShort,
		Account:         testAccount,
		SizeDelta:       d("3000"),
		SlippagePercent: d("1"),
	})
	require.NoError(t, err)
	assert.True(t, intent.AcceptablePrice.Equal(d("3030")))

	payload, err := b.BuildClose(intent)
	require.NoError(t, err)
	_, calls := decodePayload(t, payload)
	order, err := chain.DecodeCreateOrder(calls[1])
	require.NoError(t, err)
	assert.Equal(t, 0, order.Numbers.InitialCollateralDeltaAmount.Sign())
}

func TestBuilder_IntentIsSingleUse(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")}))

	intent, err := b.NewOpenIntent(context.Background(), OpenRequest{
		Market: "ETH/USD", Side: PositionSideLong, Account: testAccount,
		Collateral: d("100"), Leverage: d("2"),
	})
	require.NoError(t, err)
	assert.True(t, intent.SlippagePercent.Equal(DefaultSlippagePercent))

	_, err = b.BuildOpen(intent)
	require.NoError(t, err)
	_, err = b.BuildOpen(intent)
	assert.ErrorIs(t, err, ErrIntentConsumed)
}

func TestBuilder_FailedBuildDoesNotConsume(t *testing.T) {
	b, book := newTestBuilder(t, newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")}))

	intent, err := b.NewOpenIntent(context.Background(), OpenRequest{
		Market: "ETH/USD", Side: PositionSideLong, Account: testAccount,
		Collateral: d("100"), Leverage: d("2"),
	})
	require.NoError(t, err)

	_, err = b.BuildClose(intent)
	assert.ErrorIs(t, err, ErrInvalidIntent)
	require.NoError(t, book.Check(intent.ID))

	_, err = b.BuildOpen(intent)
	require.NoError(t, err)
}

func TestBuilder_UnregisteredIntent(t *testing.T) {
	b, _ := newTestBuilder(t, newFakePrices(nil))
	eth, _ := markets.BySymbol("ETH/USD")

	intent := OrderIntent{
		ID: "not-issued", Kind: IntentOpen, Side: PositionSideLong, Market: eth, Account: testAccount,
		Collateral: d("100"), Size: d("1000"), MarkPrice: d("3000"), AcceptablePrice: d("3030"),
	}
	_, err := b.BuildOpen(intent)
	assert.ErrorIs(t, err, ErrUnknownIntent)

	intent.MarkPrice = decimal.Zero
	_, err = b.BuildOpen(intent)
	assert.ErrorIs(t, err, marketdata.ErrPriceUnavailable)
}

type deadOracle struct{}

func (deadOracle) LatestPrice(ctx context.Context, m markets.Market) (marketdata.OraclePrice, error) {
	return marketdata.OraclePrice{}, errors.New("rpc unreachable")
}

type flakyStats struct {
	calls int
}

func (f *flakyStats) FetchStats(ctx context.Context, ids []string) (map[string]marketdata.AssetStats, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("status 429")
	}
	return map[string]marketdata.AssetStats{"ethereum": {Price: d("2000")}}, nil
}

func TestBuilder_RefusesStatsPriceWhenOracleDown(t *testing.T) {
	stats := &flakyStats{}
	cache := marketdata.NewStatsCache(time.Millisecond)
	agg := marketdata.NewAggregator(deadOracle{}, stats, cache, nil, zap.NewNop())
	eth, _ := markets.BySymbol("ETH/USD")

	// The stats price still serves display and valuation.
	p, err := agg.Price(context.Background(), eth)
	require.NoError(t, err)
	assert.True(t, p.Equal(d("2000")))
	require.Eventually(t, cache.IsStale, time.Second, time.Millisecond)

	b, book := newTestBuilder(t, agg)
	_, err = b.NewOpenIntent(context.Background(), OpenRequest{
		Market:     "ETH",
		Side:       PositionSideLong,
		Account:    testAccount,
		Collateral: d("100"),
		Leverage:   d("10"),
	})
	assert.ErrorIs(t, err, marketdata.ErrPriceUnavailable)

	_, err = b.NewCloseIntent(context.Background(), CloseRequest{
		Market:    "ETH",
		Side:      PositionSideLong,
		Account:   testAccount,
		SizeDelta: d("100"),
	})
	assert.ErrorIs(t, err, marketdata.ErrPriceUnavailable)
	assert.Zero(t, book.Len())
}

func TestResolveSlippage(t *testing.T) {
	got, err := ResolveSlippage(decimal.Zero, DefaultSlippagePercent)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.5")))

	got, err = ResolveSlippage(d("2"), DefaultSlippagePercent)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("2")))

	_, err = ResolveSlippage(d("-0.1"), DefaultSlippagePercent)
	assert.ErrorIs(t, err, ErrInvalidIntent)
	_, err = ResolveSlippage(d("50"), DefaultSlippagePercent)
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestBuilder_RequestValidation(t *testing.T) {
	prices := newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000"), "ARB/USD": d("1.2"), "LINK/USD": decimal.Zero})
	prices.errs["BTC/USD"] = marketdata.ErrPriceUnavailable
	b, book := newTestBuilder(t, prices)
	ctx := context.Background()

	valid := OpenRequest{Market: "ETH/USD", Side: PositionSideLong, Account: testAccount, Collateral: d("100"), Leverage: d("10")}

	tests := []struct {
		name   string
		mutate func(r *OpenRequest)
		want   error
	}{
		{"unknown market", func(r *OpenRequest) { r.Market = "DOGE/USD" }, markets.ErrUnknownMarket},
		{"zero account", func(r *OpenRequest) { r.Account = common.Address{} }, ErrInvalidIntent},
		{"bad side", func(r *OpenRequest) { r.Side = "sideways" }, ErrInvalidIntent},
		{"zero collateral", func(r *OpenRequest) { r.Collateral = decimal.Zero }, ErrInvalidIntent},
		{"leverage too low", func(r *OpenRequest) { r.Leverage = d("1") }, tradecalc.ErrLeverageTooLow},
		{"leverage above market max", func(r *OpenRequest) { r.Market = "ARB/USD"; r.Leverage = d("60") }, tradecalc.ErrLeverageTooHigh},
		{"negative slippage", func(r *OpenRequest) { r.SlippagePercent = d("-1") }, ErrInvalidIntent},
		{"absurd slippage", func(r *OpenRequest) { r.SlippagePercent = d("75") }, ErrInvalidIntent},
		{"price source down", func(r *OpenRequest) { r.Market = "BTC/USD" }, marketdata.ErrPriceUnavailable},
		{"zero price", func(r *OpenRequest) { r.Market = "LINK/USD" }, marketdata.ErrPriceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := b.NewOpenIntent(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, book.Len(), "rejected requests must not register intents")

	_, err := b.NewCloseIntent(ctx, CloseRequest{Market: "ETH/USD", Side: PositionSideLong, Account: testAccount})
	assert.ErrorIs(t, err, ErrInvalidIntent)
	_, err = b.NewCloseIntent(ctx, CloseRequest{Market: "ETH/USD", Side: PositionSideLong, Account: testAccount, SizeDelta: d("-1")})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestNewBuilder_Config(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{OrderVault: testVault, ExecutionFee: testFee}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewBuilder(BuilderConfig{ExchangeRouter: testRouter, ExecutionFee: testFee}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewBuilder(BuilderConfig{ExchangeRouter: testRouter, OrderVault: testVault}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)

	b, err := NewBuilder(BuilderConfig{ExchangeRouter: testRouter, OrderVault: testVault, ExecutionFee: testFee}, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)
	fee := b.ExecutionFee()
	fee.SetInt64(0)
	assert.Equal(t, testFee, b.ExecutionFee(), "ExecutionFee must return a copy")
}

func TestIntentBook(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := NewIntentBook(time.Minute)
	book.now = func() time.Time { return now }

	book.Add(OrderIntent{ID: "a", CreatedAt: now})
	got, ok := book.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	require.NoError(t, book.Check("a"))
	require.NoError(t, book.Consume("a"))
	assert.ErrorIs(t, book.Consume("a"), ErrIntentConsumed)
	assert.ErrorIs(t, book.Consume("missing"), ErrUnknownIntent)

	book.Add(OrderIntent{ID: "b", CreatedAt: now})
	now = now.Add(90 * time.Second)
	assert.ErrorIs(t, book.Consume("b"), ErrIntentExpired)

	now = now.Add(5 * time.Minute)
	book.Add(OrderIntent{ID: "c", CreatedAt: now})
	assert.Equal(t, 1, book.Len(), "old entries are pruned on insert")
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("Long")
	require.NoError(t, err)
	assert.Equal(t, PositionSideLong, s)
	s, err = ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, PositionSideShort, s)
	_, err = ParseSide("up")
	assert.ErrorIs(t, err, ErrInvalidIntent)
	assert.Equal(t, PositionSideShort, SideFromLong(false))
}

// Reconstruction

type fakeLister struct {
	positions []chain.RawPosition
	err       error
	gotEnd    int64
}

func (f *fakeLister) AccountPositions(ctx context.Context, account common.Address, start, end int64) ([]chain.RawPosition, error) {
	f.gotEnd = end
	return f.positions, f.err
}

func rawPosition(market markets.Market, collateralToken common.Address, sizeUsd, sizeInTokens, collateral *big.Int, isLong bool) chain.RawPosition {
	zero := big.NewInt(0)
	return chain.RawPosition{
		Addresses: chain.PositionAddresses{Account: testAccount, Market: market.MarketToken, CollateralToken: collateralToken},
		Numbers: chain.PositionNumbers{
			SizeInUsd:                               sizeUsd,
			SizeInTokens:                            sizeInTokens,
			CollateralAmount:                        collateral,
			BorrowingFactor:                         zero,
			FundingFeeAmountPerSize:                 zero,
			LongTokenClaimableFundingAmountPerSize:  zero,
			ShortTokenClaimableFundingAmountPerSize: zero,
			IncreasedAtBlock:                        zero,
			DecreasedAtBlock:                        zero,
		},
		Flags: chain.PositionFlags{IsLong: isLong},
	}
}

func TestReconstructor_SkipsZeroSize(t *testing.T) {
	eth, _ := markets.BySymbol("ETH/USD")
	lister := &fakeLister{positions: []chain.RawPosition{
		rawPosition(eth, markets.USDC, scaled(3000, 30), scaled(1, 18), scaled(300, 6), true),
		rawPosition(eth, markets.USDC, big.NewInt(0), big.NewInt(0), big.NewInt(0), true),
		rawPosition(eth, markets.USDC, scaled(6000, 30), scaled(2, 18), scaled(600, 6), false),
	}}
	prices := newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3300")})
	r := NewReconstructor(lister, prices, 0, metrics.New(nil), zap.NewNop())

	got := r.Positions(context.Background(), testAccount)
	require.Len(t, got, 2)
	assert.Equal(t, DefaultPositionPage, lister.gotEnd)
	assert.Equal(t, 1, prices.calls["ETH/USD"], "one price fetch per market per pass")

	long := got[0]
	assert.Equal(t, "ETH/USD", long.Market)
	assert.Equal(t, PositionSideLong, long.Side)
	assert.True(t, long.Size.Equal(d("3000")))
	assert.True(t, long.Collateral.Equal(d("300")))
	assert.True(t, long.EntryPrice.Equal(d("3000")))
	assert.True(t, long.MarkPrice.Equal(d("3300")))
	assert.True(t, long.Leverage.Equal(d("10")))
	assert.True(t, long.PnL.Equal(d("300")))
	assert.True(t, long.PnLPercent.Equal(d("100")))
	assert.True(t, long.LiquidationPrice.Equal(d("2730")))

	short := got[1]
	assert.Equal(t, PositionSideShort, short.Side)
	assert.True(t, short.PnL.Equal(d("-600")))
	assert.True(t, short.LiquidationPrice.Equal(d("3270")))
}

func TestReconstructor_SkipsUnknownMarketsAndMissingPrices(t *testing.T) {
	eth, _ := markets.BySymbol("ETH/USD")
	btc, _ := markets.BySymbol("BTC/USD")
	untracked := markets.Market{MarketToken: common.HexToAddress("0x000000000000000000000000000000000000dEaD")}

	lister := &fakeLister{positions: []chain.RawPosition{
		rawPosition(untracked, markets.USDC, scaled(1000, 30), scaled(1, 18), scaled(100, 6), true),
		rawPosition(btc, markets.USDC, scaled(65000, 30), scaled(1, 8), scaled(6500, 6), true),
		rawPosition(eth, markets.USDC, scaled(3000, 30), scaled(1, 18), scaled(300, 6), true),
	}}
	prices := newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")})
	prices.errs["BTC/USD"] = errors.New("oracle down")

	got := NewReconstructor(lister, prices, 50, nil, zap.NewNop()).Positions(context.Background(), testAccount)
	require.Len(t, got, 1)
	assert.Equal(t, "ETH/USD", got[0].Market)
	assert.Equal(t, int64(50), lister.gotEnd)
}

func TestReconstructor_LongTokenCollateral(t *testing.T) {
	eth, _ := markets.BySymbol("ETH/USD")
	// 0.1 WETH of collateral at a 3000 mark.
	collateral := new(big.Int).Div(scaled(1, 18), big.NewInt(10))
	lister := &fakeLister{positions: []chain.RawPosition{
		rawPosition(eth, eth.LongToken, scaled(1500, 30), new(big.Int).Div(scaled(1, 18), big.NewInt(2)), collateral, true),
	}}
	prices := newFakePrices(map[string]decimal.Decimal{"ETH/USD": d("3000")})

	got := NewReconstructor(lister, prices, 0, nil, zap.NewNop()).Positions(context.Background(), testAccount)
	require.Len(t, got, 1)
	assert.True(t, got[0].Collateral.Equal(d("300")))
	assert.True(t, got[0].CollateralAmount.Equal(d("0.1")))
	assert.True(t, got[0].Leverage.Equal(d("5")))
	assert.True(t, got[0].EntryPrice.Equal(d("3000")))
}

func TestReconstructor_ReadFailureIsEmpty(t *testing.T) {
	lister := &fakeLister{err: errors.New("rpc unreachable")}
	got := NewReconstructor(lister, newFakePrices(nil), 0, nil, zap.NewNop()).Positions(context.Background(), testAccount)
	require.NotNil(t, got)
	assert.Empty(t, got)

	lister = &fakeLister{}
	got = NewReconstructor(lister, newFakePrices(nil), 0, nil, zap.NewNop()).Positions(context.Background(), testAccount)
	require.NotNil(t, got)
	assert.Empty(t, got)
}
