// Package metrics exposes Prometheus instrumentation for the price aggregator, the
// position reconstructor and the order payload builder. A nil *Metrics is valid and
// records nothing, so components can be constructed without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perps"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	oracleRequests   *prometheus.CounterVec
	statsFetches     *prometheus.CounterVec
	statsCacheAge    prometheus.Gauge
	snapshotSource   *prometheus.GaugeVec
	marketPrice      *prometheus.GaugeVec
	payloadsBuilt    *prometheus.CounterVec
	payloadsRejected *prometheus.CounterVec
	positionsRead    prometheus.Counter
	positionReads    *prometheus.CounterVec
	aggregateLatency prometheus.Histogram
}

// New registers every collector on reg. Passing nil creates a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,

		oracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "On-chain oracle reads by market and result",
		}, []string{"market", "result"}),

		statsFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_fetches_total",
			Help:      "Batched 24h statistics fetches by result",
		}, []string{"result"}),

		statsCacheAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_cache_age_seconds",
			Help:      "Age of the cached 24h statistics at the last aggregation",
		}),

		snapshotSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_source",
			Help:      "1 for the price source used by the latest snapshot of each market",
		}, []string{"market", "source"}),

		marketPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_price_usd",
			Help:      "Latest aggregated price per market",
		}, []string{"market"}),

		payloadsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_built_total",
			Help:      "Order payloads built by kind",
		}, []string{"kind"}),

		payloadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_rejected_total",
			Help:      "Order payload builds refused by kind",
		}, []string{"kind"}),

		positionsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_reconstructed_total",
			Help:      "Open positions returned by reconstruction",
		}),

		positionReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_reads_total",
			Help:      "Account position reads by result",
		}, []string{"result"}),

		aggregateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Wall time of one full snapshot aggregation",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.oracleRequests,
		m.statsFetches,
		m.statsCacheAge,
		m.snapshotSource,
		m.marketPrice,
		m.payloadsBuilt,
		m.payloadsRejected,
		m.positionsRead,
		m.positionReads,
		m.aggregateLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OracleRequest(market string, err error) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(market, result(err)).Inc()
}

func (m *Metrics) StatsFetch(err error) {
	if m == nil {
		return
	}
	m.statsFetches.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) StatsCacheAge(age time.Duration) {
	if m == nil {
		return
	}
	m.statsCacheAge.Set(age.Seconds())
}

// SnapshotSource marks source as the active one for market and clears the others.
func (m *Metrics) SnapshotSource(market, source string, sources []string) {
	if m == nil {
		return
	}
	for _, s := range sources {
		v := 0.0
		if s == source {
			v = 1
		}
		m.snapshotSource.WithLabelValues(market, s).Set(v)
	}
}

func (m *Metrics) MarketPrice(market string, price float64) {
	if m == nil {
		return
	}
	m.marketPrice.WithLabelValues(market).Set(price)
}

func (m *Metrics) PayloadBuilt(kind string) {
	if m == nil {
		return
	}
	m.payloadsBuilt.WithLabelValues(kind).Inc()
}

func (m *Metrics) PayloadRejected(kind string) {
	if m == nil {
		return
	}
	m.payloadsRejected.WithLabelValues(kind).Inc()
}

// PositionRead records one account read and how many open positions it produced.
func (m *Metrics) PositionRead(count int, err error) {
	if m == nil {
		return
	}
	m.positionReads.WithLabelValues(result(err)).Inc()
	m.positionsRead.Add(float64(count))
}

func (m *Metrics) ObserveAggregate(d time.Duration) {
	if m == nil {
		return
	}
	m.aggregateLatency.Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
