// Package metrics provides Prometheus instrumentation for the fund engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts ledger transactions recorded, partitioned by side.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_engine_transactions_total",
		Help: "Total number of ledger transactions recorded",
	}, []string{"side"})

	// TransactionRejections counts rejected operations by reason
	// (invalid_amount, invalid_date, no_position, insufficient_units,
	// nav_unavailable).
	TransactionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_engine_transaction_rejections_total",
		Help: "Ledger operations rejected, by reason",
	}, []string{"reason"})

	// ResolverFallbacksTotal counts NAV date resolutions that needed an
	// adjustment, by kind (previous_year, day_walk, sell_skip).
	ResolverFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_engine_resolver_fallbacks_total",
		Help: "NAV date resolutions that fell back from the requested date",
	}, []string{"kind"})

	// OracleFetchesTotal counts NAV oracle fetches by outcome.
	OracleFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_engine_oracle_fetches_total",
		Help: "NAV history fetches against the upstream oracle",
	}, []string{"outcome"})

	// OracleFetchDuration tracks upstream oracle fetch latency.
	OracleFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fund_engine_oracle_fetch_duration_seconds",
		Help:    "NAV history fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TrackedFunds tracks the number of fund summaries currently cached.
	TrackedFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_engine_tracked_funds",
		Help: "Number of fund summaries in the registry",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fund_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
