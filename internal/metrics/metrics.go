// Package metrics provides Prometheus instrumentation for the party engine.
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
	// TradesTotal counts executed trades, partitioned by mode and outcome.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "party_trades_total",
		Help: "Total number of trades executed",
	}, []string{"mode", "outcome"})

	// MarketVolume tracks cumulative dollar flow per market and mode.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "party_market_volume_total",
		Help: "Cumulative trade flow in dollars",
	}, []string{"market_id", "mode"})

	// ResolutionsTotal counts market resolutions by winning outcome.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "party_resolutions_total",
		Help: "Total number of markets resolved",
	}, []string{"outcome"})

	// ResolutionPayout tracks total dollars paid out to winners.
	ResolutionPayout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "party_resolution_payout_total",
		Help: "Total dollars paid out on resolution",
	})

	// TransfersTotal counts peer-to-peer money sends.
	TransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "party_transfers_total",
		Help: "Total peer-to-peer transfers",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "party_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "party_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "party_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "party_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
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
		// that cardinality stays manageable.
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
