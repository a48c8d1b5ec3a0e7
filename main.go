package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perps-trading-core/api"
	"perps-trading-core/chain"
	"perps-trading-core/config"
	"perps-trading-core/execution"
	"perps-trading-core/feed"
	"perps-trading-core/logger"
	"perps-trading-core/marketdata"
	"perps-trading-core/metrics"
)

// Service owns every long-running component of the process.
type Service struct {
	config *config.Config
	logger *zap.Logger

	client     *ethclient.Client
	aggregator *marketdata.Aggregator
	hub        *feed.Hub
	server     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	m := metrics.New(nil)

	oracle := marketdata.NewChainlinkOracle(chain.NewPriceFeed(client))
	stats := marketdata.NewCoinGeckoClient(marketdata.CoinGeckoConfig{
		BaseURL:           cfg.Stats.BaseURL,
		APIKey:            cfg.Stats.APIKey,
		RequestsPerMinute: cfg.Stats.RequestsPerMinute,
	}, logger)
	aggregator := marketdata.NewAggregator(oracle, stats, marketdata.NewStatsCache(cfg.Stats.TTL), m, logger)

	fee, err := cfg.ExecutionFeeWei()
	if err != nil {
		client.Close()
		return nil, err
	}
	slippage, err := cfg.Slippage()
	if err != nil {
		client.Close()
		return nil, err
	}
	builder, err := execution.NewBuilder(execution.BuilderConfig{
		ExchangeRouter:  cfg.Contracts.ExchangeRouterAddress(),
		OrderVault:      cfg.Contracts.OrderVaultAddress(),
		ExecutionFee:    fee,
		DefaultSlippage: slippage,
	}, aggregator, execution.NewIntentBook(cfg.IntentTTL), m, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	reader := chain.NewPositionReader(client, cfg.Contracts.ReaderAddress(), cfg.Contracts.DataStoreAddress())
	reconstructor := execution.NewReconstructor(reader, aggregator, cfg.PositionPageSize, m, logger)

	hub := feed.NewHub(logger)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Config{
		Markets:   aggregator,
		Orders:    builder,
		Positions: reconstructor,
		Metrics:   m.Handler(),
		Feed:      hub,
		Logger:    logger,
	})

	return &Service{
		config:     cfg,
		logger:     logger,
		client:     client,
		aggregator: aggregator,
		hub:        hub,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start launches the feed hub, the aggregation loop and the HTTP server.
func (s *Service) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.aggregator.Run(s.ctx, s.config.PollInterval, s.hub.Publish)
	}()
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", zap.String("addr", s.config.HTTPAddr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
			s.cancel()
		}
	}()
}

// Done is closed when the service stops on its own.
func (s *Service) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Service) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.cancel()
	s.wg.Wait()
	s.client.Close()
	return err
}

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting perps core",
		zap.String("rpc", cfg.RPCURL),
		zap.String("exchange_router", cfg.Contracts.ExchangeRouter),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	svc, err := NewService(dialCtx, cfg, zapLogger)
	cancel()
	if err != nil {
		zapLogger.Fatal("failed to create service", zap.Error(err))
	}
	svc.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		zapLogger.Info("shutdown signal received", zap.String("signal", s.String()))
	case <-svc.Done():
		zapLogger.Warn("service stopped unexpectedly")
	}

	if err := svc.Stop(); err != nil {
		zapLogger.Error("error stopping service", zap.Error(err))
	}
	zapLogger.Info("stopped")
}
