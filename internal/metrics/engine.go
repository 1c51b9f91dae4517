package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine and breaker Prometheus metrics.
var (
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchbridge",
			Name:      "engine_requests_total",
			Help:      "Total number of search engine calls",
		},
		[]string{"engine", "op", "status"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchbridge",
			Name:      "engine_request_duration_seconds",
			Help:      "Search engine call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"engine", "op"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "searchbridge",
			Name:      "circuit_breaker_state",
			Help:      "Current state of the engine circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers Prometheus engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EngineRequestsTotal)
	prometheus.MustRegister(EngineRequestDuration)
	prometheus.MustRegister(BreakerState)
	engineMetricsRegistered = true
}

// ObserveEngine records one engine call.
func ObserveEngine(engine, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EngineRequestsTotal.WithLabelValues(engine, op, status).Inc()
	EngineRequestDuration.WithLabelValues(engine, op).Observe(time.Since(start).Seconds())
}
