// Package api exposes market data, trade previews, positions and unsigned order
// payloads over HTTP for the application shell and an external signer.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perps-trading-core/execution"
	"perps-trading-core/marketdata"
	"perps-trading-core/markets"
)

// MarketService is satisfied by *marketdata.Aggregator.
type MarketService interface {
	Snapshots(ctx context.Context) []marketdata.MarketSnapshot
	Snapshot(ctx context.Context, symbol string) (marketdata.MarketSnapshot, error)
	Price(ctx context.Context, market markets.Market) (decimal.Decimal, error)
}

// OrderService is satisfied by *execution.Builder.
type OrderService interface {
	NewOpenIntent(ctx context.Context, req execution.OpenRequest) (execution.OrderIntent, error)
	NewCloseIntent(ctx context.Context, req execution.CloseRequest) (execution.OrderIntent, error)
	BuildOpen(intent execution.OrderIntent) (execution.Payload, error)
	BuildClose(intent execution.OrderIntent) (execution.Payload, error)
}

// PositionService is satisfied by *execution.Reconstructor.
type PositionService interface {
	Positions(ctx context.Context, account common.Address) []execution.Position
}

type Config struct {
	Markets   MarketService
	Orders    OrderService
	Positions PositionService
	// Metrics and Feed are mounted at /metrics and /ws when set.
	Metrics http.Handler
	Feed    http.Handler
	Logger  *zap.Logger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if cfg.Feed != nil {
		router.GET("/ws", gin.WrapH(cfg.Feed))
	}

	h := &Handler{markets: cfg.Markets, orders: cfg.Orders, positions: cfg.Positions, logger: cfg.Logger}

	v1 := router.Group("/v1")
	{
		v1.GET("/markets", h.ListMarkets)
		v1.GET("/markets/:base", h.GetMarket)
		v1.GET("/preview", h.Preview)
		v1.GET("/positions/:account", h.ListPositions)
	}
	orders := v1.Group("/orders")
	{
		orders.POST("/open", h.OpenOrder)
		orders.POST("/close", h.CloseOrder)
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
