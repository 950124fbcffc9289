// Package metrics exposes Prometheus collectors for the marketplace engine
// and HTTP instrumentation for the API surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "market_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "market_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	engineOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_engine",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of engine operations by outcome.",
		},
		[]string{"op", "status"},
	)

	bidsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market_engine",
			Subsystem: "engine",
			Name:      "bids_accepted_total",
			Help:      "Total number of accepted bids.",
		},
	)

	escrowRefunds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "market_engine",
			Subsystem: "engine",
			Name:      "escrow_refunds_total",
			Help:      "Total number of escrow refunds issued to displaced or cancelled bidders.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_engine",
			Subsystem: "engine",
			Name:      "settlements_total",
			Help:      "Total number of settlement attempts by outcome.",
		},
		[]string{"status"},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "market_engine",
			Subsystem: "engine",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of settlement attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		engineOperations,
		bidsAccepted,
		escrowRefunds,
		settlements,
		settlementDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation counts one engine operation by outcome.
func RecordOperation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	engineOperations.WithLabelValues(op, status).Inc()
}

// RecordBidAccepted counts one accepted bid.
func RecordBidAccepted() {
	bidsAccepted.Inc()
}

// RecordRefund counts one escrow refund.
func RecordRefund() {
	escrowRefunds.Inc()
}

// RecordSettlement records a settlement attempt and its duration.
func RecordSettlement(duration time.Duration, err error) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	settlements.WithLabelValues(status).Inc()
	settlementDuration.Observe(duration.Seconds())
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

// canonicalPath collapses asset and wallet IDs so metric cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "assets":
		if len(parts) == 1 {
			return "/assets"
		}
		rest := parts[2:]
		if len(rest) == 0 {
			return "/assets/:asset"
		}
		return "/assets/:asset/" + strings.Join(rest, "/")
	case "wallets":
		if len(parts) == 1 {
			return "/wallets"
		}
		rest := parts[2:]
		if len(rest) == 0 {
			return "/wallets/:wallet"
		}
		return "/wallets/:wallet/" + strings.Join(rest, "/")
	default:
		return "/" + parts[0]
	}
}
