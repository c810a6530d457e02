package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "compliance_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	aggregationRuns    *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec
	scheduleFallbacks  prometheus.Counter
)

// Init registers the aggregation collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		aggregationRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_runs_total",
				Help: "Total aggregation runs by operation and result",
			},
			[]string{"operation", "result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_latency_seconds",
				Help:    "Aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		scheduleFallbacks = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_fallbacks_total",
				Help: "Operational windows that fell back to the whole day because of an unusable schedule",
			},
		)

		prometheus.MustRegister(
			aggregationRuns,
			aggregationLatency,
			scheduleFallbacks,
		)
	})
}

// ObserveAggregation records one run of an operation.
func ObserveAggregation(operation string, err error, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if aggregationRuns != nil {
		aggregationRuns.WithLabelValues(operation, result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// AddScheduleFallbacks counts windows resolved with the whole-day default.
func AddScheduleFallbacks(count int) {
	if count <= 0 {
		return
	}
	if scheduleFallbacks != nil {
		scheduleFallbacks.Add(float64(count))
	}
}
