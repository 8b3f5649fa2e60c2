package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsReceived counts every signal entering the pipeline.
	SignalsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_signals_received_total",
			Help: "Total signals received, by symbol and strategy",
		},
		[]string{"symbol", "strategy"},
	)

	// SignalOutcomes counts terminal pipeline outcomes.
	SignalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_signal_outcomes_total",
			Help: "Terminal signal outcomes, by symbol and outcome",
		},
		[]string{"symbol", "outcome"},
	)

	// RiskCheckFailures counts individual risk check failures.
	RiskCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_risk_check_failures_total",
			Help: "Risk check failures, by check name",
		},
		[]string{"check"},
	)

	// OrdersSubmitted counts orders sent to the venue.
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_orders_submitted_total",
			Help: "Orders submitted to the venue, by symbol and result",
		},
		[]string{"symbol", "result"},
	)

	// OpenPositions tracks currently open positions.
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trade_engine_open_positions",
			Help: "Currently open positions, by symbol",
		},
		[]string{"symbol"},
	)

	// BreakerTrips counts circuit breaker activations.
	BreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_breaker_trips_total",
			Help: "Circuit breaker trips, by trigger",
		},
		[]string{"trigger"},
	)

	// FeedState reports the price feed state as a one-hot gauge.
	FeedState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trade_engine_feed_state",
			Help: "Price feed connection state (1 for the active state)",
		},
		[]string{"state"},
	)

	// APILatency observes venue call latency.
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_engine_api_latency_seconds",
			Help:    "Venue API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RealizedPnL tracks cumulative realized PnL.
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trade_engine_realized_pnl",
			Help: "Cumulative realized PnL in quote currency",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsReceived,
		SignalOutcomes,
		RiskCheckFailures,
		OrdersSubmitted,
		OpenPositions,
		BreakerTrips,
		FeedState,
		APILatency,
		RealizedPnL,
	)
}

// SetFeedState flips the one-hot feed state gauge.
func SetFeedState(state string) {
	for _, s := range []string{"DISCONNECTED", "CONNECTING", "SUBSCRIBED", "DEGRADED"} {
		v := 0.0
		if s == state {
			v = 1
		}
		FeedState.WithLabelValues(s).Set(v)
	}
}

// ObserveAPICall times a venue call into the latency histogram.
func ObserveAPICall(operation string, start time.Time) {
	APILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ServeMetrics exposes the prometheus endpoint on the given port. Blocks.
func ServeMetrics(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
