package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job queue Prometheus metrics.
var (
	JobUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchbridge",
			Name:      "job_units_total",
			Help:      "Total number of processed job units",
		},
		[]string{"kind", "status"}, // ok / retry / failed / skipped
	)

	JobUnitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchbridge",
			Name:      "job_unit_duration_seconds",
			Help:      "Job unit execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchbridge",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of enqueued job units",
		},
		[]string{"kind"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "searchbridge",
			Name:      "queue_depth",
			Help:      "Number of job units waiting in the queue",
		},
	)

	SwapFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchbridge",
			Name:      "index_swap_failures_total",
			Help:      "Total number of failed atomic index swaps",
		},
		[]string{"index"},
	)
)

var jobMetricsRegistered bool

// RegisterJobMetrics registers Prometheus job metrics. Must be called once from main.
func RegisterJobMetrics() {
	if jobMetricsRegistered {
		return
	}
	prometheus.MustRegister(JobUnitsTotal)
	prometheus.MustRegister(JobUnitDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(SwapFailuresTotal)
	jobMetricsRegistered = true
}

// ObserveJob records one executed unit.
func ObserveJob(kind, status string, start time.Time) {
	JobUnitsTotal.WithLabelValues(kind, status).Inc()
	JobUnitDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
