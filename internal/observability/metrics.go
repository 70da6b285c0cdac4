// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pricing metrics
	SwapsPriced        *prometheus.CounterVec
	SwapsRejected      *prometheus.CounterVec
	TransactionsSeen   *prometheus.CounterVec
	ReferencePrice     *prometheus.GaugeVec
	LastSwapPricedUnix prometheus.Gauge

	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	NotificationsSkipped  *prometheus.CounterVec
	WorkerQueueDepth      prometheus.Gauge
	HighestSlotSeen       prometheus.Gauge

	// Latency metrics
	PricingLatency    prometheus.Histogram
	RPCCallLatency    *prometheus.HistogramVec
	PriceFetchLatency *prometheus.HistogramVec
	PriceFetchErrors  *prometheus.CounterVec
	PriceCacheLookups *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	highestSlot atomic.Int64
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "swap_pricer"
	}
	f := promauto.With(reg)

	return &Metrics{
		SwapsPriced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "swaps_priced_total",
			Help:      "Total number of swaps priced by side",
		}, []string{"side"}),
		SwapsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "swaps_rejected_total",
			Help:      "Total number of transactions that produced no price, by reason",
		}, []string{"reason"}),
		TransactionsSeen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "transactions_total",
			Help:      "Total number of transactions handed to the pricer by source",
		}, []string{"source"}),
		ReferencePrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "reference_price",
			Help:      "Last reference asset price used for pricing",
		}, []string{"mint"}),
		LastSwapPricedUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_swap_priced_timestamp",
			Help:      "Unix timestamp of the last successfully priced swap",
		}),

		NotificationsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_received_total",
			Help:      "Total number of log notifications received",
		}),
		NotificationsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_skipped_total",
			Help:      "Total number of log notifications skipped by reason",
		}, []string{"reason"}),
		WorkerQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "worker_queue_depth",
			Help:      "Signatures waiting for a pricing worker",
		}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		PricingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "transaction_latency_seconds",
			Help:      "Time to fetch, price and persist one transaction",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PriceFetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_latency_seconds",
			Help:      "Reference price lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		PriceFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed reference price lookups",
		}, []string{"source"}),
		PriceCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "cache_lookups_total",
			Help:      "Reference price cache lookups by result",
		}, []string{"result"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPriced records a priced swap.
func (m *Metrics) RecordPriced(side, referenceMint string, referencePrice float64) {
	m.SwapsPriced.WithLabelValues(side).Inc()
	m.ReferencePrice.WithLabelValues(referenceMint).Set(referencePrice)
	m.LastSwapPricedUnix.Set(float64(time.Now().Unix()))
}

// RecordRejected records a transaction that produced no price.
func (m *Metrics) RecordRejected(reason string) {
	m.SwapsRejected.WithLabelValues(reason).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordPriceFetch records a reference price lookup.
func (m *Metrics) RecordPriceFetch(source string, d time.Duration, err error) {
	m.PriceFetchLatency.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.PriceFetchErrors.WithLabelValues(source).Inc()
	}
}

// RecordCacheLookup records a price cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PriceCacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateHighestSlot raises the highest slot gauge; lower slots are ignored.
func (m *Metrics) UpdateHighestSlot(slot int64) {
	for {
		cur := m.highestSlot.Load()
		if slot <= cur {
			return
		}
		if m.highestSlot.CompareAndSwap(cur, slot) {
			m.HighestSlotSeen.Set(float64(slot))
			return
		}
	}
}
