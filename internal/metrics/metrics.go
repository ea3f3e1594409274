// Package metrics provides basket engine metrics collection.
// It wraps Prometheus collectors for operation outcomes, fee accrual, cache movements and the
// committed basket composition.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/elys-network/basket-engine/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides basket metrics collection. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Operation metrics
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	rejectionsTotal  *prometheus.CounterVec
	feesTotal        *prometheus.CounterVec

	// Cache metrics
	cacheMoves *prometheus.CounterVec
	cacheLevel *prometheus.GaugeVec

	// Basket metrics
	vaultBalance       *prometheus.GaugeVec
	weight             *prometheus.GaugeVec
	totalSupply        prometheus.Gauge
	surplus            prometheus.Gauge
	sequence           prometheus.Gauge
	checkpointFailures prometheus.Counter

	// HTTP metrics
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a new basket metrics collector on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "basket"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of basket operations by kind and result",
		},
		[]string{"kind", "result"},
	)

	c.operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by a basket operation, integrator calls included",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"kind"},
	)

	c.rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rejections_total",
			Help:      "Total number of operations rejected by validation, by reason",
		},
		[]string{"kind", "reason"},
	)

	c.feesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_total",
			Help:      "Fees credited to surplus, in pool token units",
		},
		[]string{"kind"},
	)

	c.cacheMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "moves_total",
			Help:      "Cache sweeps to and refills from integrators",
		},
		[]string{"asset", "direction"},
	)

	c.cacheLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fill_ratio",
			Help:      "Physical cache after the last operation divided by its cap",
		},
		[]string{"asset"},
	)

	c.vaultBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "basket",
			Name:      "vault_balance",
			Help:      "Committed vault balance per bAsset, normalized to pool token units",
		},
		[]string{"asset"},
	)

	c.weight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "basket",
			Name:      "weight",
			Help:      "Share of total pool value held per bAsset",
		},
		[]string{"asset"},
	)

	c.totalSupply = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "basket",
		Name:      "total_supply",
		Help:      "Outstanding pool token supply",
	})

	c.surplus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "basket",
		Name:      "surplus",
		Help:      "Undistributed surplus in pool token units",
	})

	c.sequence = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "basket",
		Name:      "sequence",
		Help:      "Number of committed operations",
	})

	c.checkpointFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "record_failures_total",
		Help:      "Receipts or parameter versions that could not be persisted",
	})

	c.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	c.registry.MustRegister(
		c.operationsTotal,
		c.operationLatency,
		c.rejectionsTotal,
		c.feesTotal,
		c.cacheMoves,
		c.cacheLevel,
		c.vaultBalance,
		c.weight,
		c.totalSupply,
		c.surplus,
		c.sequence,
		c.checkpointFailures,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		prometheus.NewGoCollector(),
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordOperation records the outcome and latency of one engine operation.
func (c *Collector) RecordOperation(kind types.OperationKind, duration time.Duration, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.operationsTotal.WithLabelValues(string(kind), result).Inc()
	c.operationLatency.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordRejection counts a validation rejection.
func (c *Collector) RecordRejection(kind types.OperationKind, reason string) {
	if c == nil {
		return
	}
	c.rejectionsTotal.WithLabelValues(string(kind), reason).Inc()
}

// RecordFee adds a normalized fee to the running total.
func (c *Collector) RecordFee(kind types.OperationKind, fee sdkmath.Int) {
	if c == nil || fee.IsNil() || !fee.IsPositive() {
		return
	}
	if f, err := utils.ToDisplay(fee, utils.MaxDecimals); err == nil {
		c.feesTotal.WithLabelValues(string(kind)).Add(f)
	}
}

// RecordCacheAction records sweeps, refills and the resulting cache level.
func (c *Collector) RecordCacheAction(action types.CacheAction) {
	if c == nil {
		return
	}
	if !action.Deposited.IsNil() && action.Deposited.IsPositive() {
		c.cacheMoves.WithLabelValues(action.Asset, "sweep").Inc()
	}
	if !action.Withdrawn.IsNil() && action.Withdrawn.IsPositive() {
		c.cacheMoves.WithLabelValues(action.Asset, "refill").Inc()
	}
	if !action.MaxCache.IsNil() && action.MaxCache.IsPositive() && !action.CacheAfter.IsNil() {
		level, _ := utils.DivPrecisely(action.CacheAfter, action.MaxCache).Float64()
		c.cacheLevel.WithLabelValues(action.Asset).Set(level)
	}
}

// RecordCheckpointFailure counts a persistence failure that did not undo the commit.
func (c *Collector) RecordCheckpointFailure() {
	if c == nil {
		return
	}
	c.checkpointFailures.Inc()
}

// RecordBasket publishes the committed basket composition.
func (c *Collector) RecordBasket(b *types.Basket) {
	if c == nil || b == nil {
		return
	}
	total := b.TotalValue()
	for _, ba := range b.Bassets {
		normalized := utils.ToNormalized(ba.VaultBalance, ba.Ratio)
		if v, err := utils.ToDisplay(normalized, utils.MaxDecimals); err == nil {
			c.vaultBalance.WithLabelValues(ba.Address).Set(v)
		}
		w, _ := validator.Weight(normalized, total).Float64()
		c.weight.WithLabelValues(ba.Address).Set(w)
	}
	if v, err := utils.ToDisplay(b.TotalSupply, utils.MaxDecimals); err == nil {
		c.totalSupply.Set(v)
	}
	if v, err := utils.ToDisplay(b.Surplus, utils.MaxDecimals); err == nil {
		c.surplus.Set(v)
	}
	c.sequence.Set(float64(b.Sequence))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses per-asset and per-receipt paths so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 3 && parts[0] == "api" {
		switch parts[1] {
		case "bassets":
			return "/api/bassets/:asset"
		case "receipts":
			return "/api/receipts/:id"
		}
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}
