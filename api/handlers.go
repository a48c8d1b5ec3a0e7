package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perps-trading-core/execution"
	"perps-trading-core/marketdata"
	"perps-trading-core/markets"
	"perps-trading-core/tradecalc"
)

var errBadRequest = errors.New("bad request")

type Handler struct {
	markets   MarketService
	orders    OrderService
	positions PositionService
	logger    *zap.Logger
}

type openBody struct {
	Market          string          `json:"market" binding:"required"`
	Side            string          `json:"side" binding:"required"`
	Account         string          `json:"account" binding:"required"`
	Collateral      decimal.Decimal `json:"collateral"`
	Leverage        decimal.Decimal `json:"leverage"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
}

type closeBody struct {
	Market          string          `json:"market" binding:"required"`
	Side            string          `json:"side" binding:"required"`
	Account         string          `json:"account" binding:"required"`
	SizeDelta       decimal.Decimal `json:"size_delta"`
	CollateralDelta decimal.Decimal `json:"collateral_delta"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
}

// Transaction is a payload in the form a wallet signs: hex call data and a hex wei value.
type Transaction struct {
	To       common.Address `json:"to"`
	Data     string         `json:"data"`
	Value    string         `json:"value"`
	ValueWei string         `json:"value_wei"`
	Calls    []string       `json:"calls"`
}

type orderResponse struct {
	Intent      execution.OrderIntent `json:"intent"`
	Transaction Transaction           `json:"transaction"`
}

type previewResponse struct {
	Market          string                 `json:"market"`
	Side            execution.PositionSide `json:"side"`
	AcceptablePrice decimal.Decimal        `json:"acceptable_price"`
	Preview         tradecalc.TradePreview `json:"preview"`
}

func (h *Handler) ListMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, h.markets.Snapshots(c.Request.Context()))
}

func (h *Handler) GetMarket(c *gin.Context) {
	snap, err := h.markets.Snapshot(c.Request.Context(), c.Param("base"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Preview answers /v1/preview?market=ETH&side=long&collateral=100&leverage=10[&slippage=1].
func (h *Handler) Preview(c *gin.Context) {
	market, ok := markets.BySymbol(c.Query("market"))
	if !ok {
		h.writeError(c, fmt.Errorf("%w: %q", markets.ErrUnknownMarket, c.Query("market")))
		return
	}
	side, err := execution.ParseSide(c.Query("side"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	collateral, err := queryDecimal(c, "collateral", decimal.Zero)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !collateral.IsPositive() {
		h.writeError(c, fmt.Errorf("%w: collateral must be positive", errBadRequest))
		return
	}
	leverage, err := queryDecimal(c, "leverage", decimal.Zero)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := tradecalc.CheckLeverage(leverage, market.MaxLeverage); err != nil {
		h.writeError(c, err)
		return
	}
	requested, err := queryDecimal(c, "slippage", decimal.Zero)
	if err != nil {
		h.writeError(c, err)
		return
	}
	slippage, err := execution.ResolveSlippage(requested, execution.DefaultSlippagePercent)
	if err != nil {
		h.writeError(c, err)
		return
	}

	price, err := h.markets.Price(c.Request.Context(), market)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, previewResponse{
		Market:          market.Symbol,
		Side:            side,
		AcceptablePrice: tradecalc.AcceptablePrice(price, side.IsLong(), slippage, false),
		Preview:         tradecalc.Preview(collateral, leverage, price, side.IsLong()),
	})
}

func (h *Handler) ListPositions(c *gin.Context) {
	account, err := parseAccount(c.Param("account"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":   account,
		"positions": h.positions.Positions(c.Request.Context(), account),
	})
}

func (h *Handler) OpenOrder(c *gin.Context) {
	var body openBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	side, err := execution.ParseSide(body.Side)
	if err != nil {
		h.writeError(c, err)
		return
	}
	account, err := parseAccount(body.Account)
	if err != nil {
		h.writeError(c, err)
		return
	}

	intent, err := h.orders.NewOpenIntent(c.Request.Context(), execution.OpenRequest{
		Market:          body.Market,
		Side:            side,
		Account:         account,
		Collateral:      body.Collateral,
		Leverage:        body.Leverage,
		SlippagePercent: body.SlippagePercent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload, err := h.orders.BuildOpen(intent)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse{Intent: intent, Transaction: toTransaction(payload)})
}

func (h *Handler) CloseOrder(c *gin.Context) {
	var body closeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	side, err := execution.ParseSide(body.Side)
	if err != nil {
		h.writeError(c, err)
		return
	}
	account, err := parseAccount(body.Account)
	if err != nil {
		h.writeError(c, err)
		return
	}

	intent, err := h.orders.NewCloseIntent(c.Request.Context(), execution.CloseRequest{
		Market:          body.Market,
		Side:            side,
		Account:         account,
		SizeDelta:       body.SizeDelta,
		CollateralDelta: body.CollateralDelta,
		SlippagePercent: body.SlippagePercent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload, err := h.orders.BuildClose(intent)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse{Intent: intent, Transaction: toTransaction(payload)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, execution.ErrInvalidIntent),
		errors.Is(err, tradecalc.ErrLeverageTooLow),
		errors.Is(err, tradecalc.ErrLeverageTooHigh):
		return http.StatusBadRequest
	case errors.Is(err, markets.ErrUnknownMarket),
		errors.Is(err, execution.ErrUnknownIntent):
		return http.StatusNotFound
	case errors.Is(err, execution.ErrIntentConsumed),
		errors.Is(err, execution.ErrIntentExpired):
		return http.StatusConflict
	case errors.Is(err, marketdata.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func toTransaction(p execution.Payload) Transaction {
	calls := make([]string, len(p.Calls))
	for i, call := range p.Calls {
		calls[i] = hexutil.Encode(call)
	}
	return Transaction{
		To:       p.To,
		Data:     hexutil.Encode(p.Data),
		Value:    hexutil.EncodeBig(p.Value),
		ValueWei: p.Value.String(),
		Calls:    calls,
	}
}

func parseAccount(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid account %q", errBadRequest, s)
	}
	return common.HexToAddress(s), nil
}

func queryDecimal(c *gin.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q", errBadRequest, key, raw)
	}
	return v, nil
}
