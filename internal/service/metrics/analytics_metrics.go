package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deepresearch",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of analytics sidecar endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepresearch",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Errors by analytics sidecar endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors)
	})
}

// ObserveAnalytics records one sidecar request.
func ObserveAnalytics(endpoint string, started time.Time, err error) {
	AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		AnalyticsErrors.WithLabelValues(endpoint).Inc()
	}
}
