// Package marketdata aggregates market prices from the on-chain oracle and the
// batched 24h statistics source, with a shared TTL cache and per-market fallback.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perps-trading-core/markets"
	"perps-trading-core/metrics"
)

var ErrPriceUnavailable = errors.New("no price available")

// Source names where a snapshot's price came from.
type Source string

const (
	SourceOracle Source = "oracle"
	SourceStats  Source = "stats"
	SourceNone   Source = "none"
)

var allSources = []string{string(SourceOracle), string(SourceStats), string(SourceNone)}

// statsRetryInterval throttles refetch attempts after a failed stats request.
const statsRetryInterval = 10 * time.Second

var (
	degradedHigh = decimal.NewFromFloat(1.02)
	degradedLow  = decimal.NewFromFloat(0.98)
)

// MarketSnapshot is one market's aggregated view at a point in time. Open interest
// and funding are best-effort and zero when no source provides them.
type MarketSnapshot struct {
	Symbol            string          `json:"symbol"`
	BaseAsset         string          `json:"base_asset"`
	Price             decimal.Decimal `json:"price"`
	Change24h         decimal.Decimal `json:"change_24h"`
	High24h           decimal.Decimal `json:"high_24h"`
	Low24h            decimal.Decimal `json:"low_24h"`
	Volume24h         decimal.Decimal `json:"volume_24h"`
	OpenInterestLong  decimal.Decimal `json:"open_interest_long"`
	OpenInterestShort decimal.Decimal `json:"open_interest_short"`
	FundingRate       decimal.Decimal `json:"funding_rate"`
	MaxLeverage       decimal.Decimal `json:"max_leverage"`
	Source            Source          `json:"source"`
	Stale             bool            `json:"stale"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Aggregator merges the oracle and stats sources for every tracked market.
type Aggregator struct {
	oracle  PriceSource
	stats   StatsSource
	cache   *StatsCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	markets []markets.Market
	now     func() time.Time

	refreshMu   sync.Mutex
	lastAttempt time.Time
}

func NewAggregator(oracle PriceSource, stats StatsSource, cache *StatsCache, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	if cache == nil {
		cache = NewStatsCache(DefaultStatsTTL)
	}
	return &Aggregator{
		oracle:  oracle,
		stats:   stats,
		cache:   cache,
		metrics: m,
		logger:  logger.With(zap.String("component", "aggregator")),
		markets: markets.All(),
		now:     time.Now,
	}
}

// Snapshots builds a snapshot for every market. Oracle reads run concurrently and a
// failing market degrades only its own snapshot; the call never fails.
func (a *Aggregator) Snapshots(ctx context.Context) []MarketSnapshot {
	start := a.now()
	a.refreshStats(ctx)

	out := make([]MarketSnapshot, len(a.markets))
	var wg sync.WaitGroup
	for i, m := range a.markets {
		wg.Add(1)
		go func(i int, m markets.Market) {
			defer wg.Done()
			out[i] = a.snapshot(ctx, m)
		}(i, m)
	}
	wg.Wait()

	a.metrics.StatsCacheAge(a.cache.Age())
	a.metrics.ObserveAggregate(a.now().Sub(start))
	return out
}

// Snapshot builds the snapshot of a single market by symbol or base asset.
func (a *Aggregator) Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error) {
	m, ok := markets.BySymbol(symbol)
	if !ok {
		return MarketSnapshot{}, fmt.Errorf("%w: %q", markets.ErrUnknownMarket, symbol)
	}
	a.refreshStats(ctx)
	return a.snapshot(ctx, m), nil
}

// Price returns the best available price for display and position valuation: the
// oracle first, then the cached stats price. A zero price is never returned.
func (a *Aggregator) Price(ctx context.Context, market markets.Market) (decimal.Decimal, error) {
	op, err := a.oracle.LatestPrice(ctx, market)
	a.metrics.OracleRequest(market.Symbol, err)
	if err == nil {
		return op.Price, nil
	}
	a.logger.Warn("oracle price failed, trying stats",
		zap.String("market", market.Symbol), zap.Error(err))

	a.refreshStats(ctx)
	if s, ok := a.cache.Get(market.StatsID); ok && s.Price.IsPositive() {
		return s.Price, nil
	}
	return decimal.Zero, fmt.Errorf("%w for %s", ErrPriceUnavailable, market.Symbol)
}

// ExecutionPrice returns the oracle price an order may be built against. Stats
// prices are never used here, fresh or stale.
func (a *Aggregator) ExecutionPrice(ctx context.Context, market markets.Market) (decimal.Decimal, error) {
	op, err := a.oracle.LatestPrice(ctx, market)
	a.metrics.OracleRequest(market.Symbol, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w for %s: %v", ErrPriceUnavailable, market.Symbol, err)
	}
	if !op.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrPriceUnavailable, market.Symbol)
	}
	return op.Price, nil
}

// Run aggregates every interval until ctx is cancelled and hands each result set to
// publish. Each pass is bounded by the interval so a slow pass is superseded by the
// next one.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration, publish func([]MarketSnapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		passCtx, cancel := context.WithTimeout(ctx, interval)
		snaps := a.Snapshots(passCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		publish(snaps)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Aggregator) snapshot(ctx context.Context, m markets.Market) MarketSnapshot {
	snap := MarketSnapshot{
		Symbol:      m.Symbol,
		BaseAsset:   m.BaseAsset,
		MaxLeverage: m.MaxLeverage,
		Source:      SourceNone,
		UpdatedAt:   a.now(),
	}

	stats, hasStats := a.cache.Get(m.StatsID)

	op, err := a.oracle.LatestPrice(ctx, m)
	a.metrics.OracleRequest(m.Symbol, err)
	switch {
	case err == nil:
		snap.Price = op.Price
		snap.Source = SourceOracle
		if !op.UpdatedAt.IsZero() {
			snap.UpdatedAt = op.UpdatedAt
		}
	case hasStats && stats.Price.IsPositive():
		snap.Price = stats.Price
		snap.Source = SourceStats
		a.logger.Warn("oracle unavailable, using stats price",
			zap.String("market", m.Symbol), zap.Error(err))
	default:
		a.logger.Warn("no price source available",
			zap.String("market", m.Symbol), zap.Error(err))
	}

	if hasStats {
		snap.Change24h = stats.Change24h
		snap.Volume24h = stats.Volume24h
		snap.High24h = stats.High24h
		snap.Low24h = stats.Low24h
		snap.Stale = a.cache.IsStale()
	}
	if !snap.High24h.IsPositive() || !snap.Low24h.IsPositive() {
		snap.High24h = snap.Price.Mul(degradedHigh)
		snap.Low24h = snap.Price.Mul(degradedLow)
	}

	a.metrics.SnapshotSource(m.Symbol, string(snap.Source), allSources)
	price, _ := snap.Price.Float64()
	a.metrics.MarketPrice(m.Symbol, price)
	return snap
}

// refreshStats refetches the batched stats when the cache is stale. Concurrent
// callers share one request; on failure the old entries stay in place.
func (a *Aggregator) refreshStats(ctx context.Context) {
	if a.stats == nil || !a.cache.IsStale() {
		return
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	if !a.cache.IsStale() {
		return
	}
	if !a.lastAttempt.IsZero() && a.now().Sub(a.lastAttempt) < statsRetryInterval {
		return
	}
	a.lastAttempt = a.now()

	ids := make([]string, 0, len(a.markets))
	for _, m := range a.markets {
		ids = append(ids, m.StatsID)
	}

	stats, err := a.stats.FetchStats(ctx, ids)
	a.metrics.StatsFetch(err)
	if err != nil {
		a.logger.Warn("stats refresh failed, serving cached values",
			zap.Error(err), zap.Duration("cache_age", a.cache.Age()))
		return
	}
	a.cache.Store(stats)
	a.lastAttempt = time.Time{}
}
