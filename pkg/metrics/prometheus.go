package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	research     *prometheus.CounterVec
	researchTime *prometheus.HistogramVec
	calls        *prometheus.CounterVec
	callTime     *prometheus.HistogramVec
	confidence   *prometheus.GaugeVec
	errorsTotal  *prometheus.CounterVec
	published    *prometheus.CounterVec
}

var _ repository.Metrics = (*Recorder)(nil)

// New registers the collectors on the default registry. Call it once.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		research: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepresearch_research_runs_total",
				Help: "Research runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		researchTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deepresearch_research_duration_seconds",
				Help:    "Wall time of a research run",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 20},
			},
			[]string{"outcome"},
		),
		calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepresearch_provider_calls_total",
				Help: "External calls by provider, call name and status",
			},
			[]string{"provider", "call", "status"},
		),
		callTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deepresearch_provider_call_duration_seconds",
				Help:    "Duration of attempted external calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "call"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deepresearch_last_confidence",
				Help: "Last published confidence per symbol and timeframe",
			},
			[]string{"symbol", "timeframe"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepresearch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		published: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepresearch_results_published_total",
				Help: "Research results handed to a sink backend",
			},
			[]string{"backend", "symbol"},
		),
	}
}

func (r *Recorder) RecordResearch(symbol, outcome string, seconds float64) {
	r.research.WithLabelValues(symbol, outcome).Inc()
	r.researchTime.WithLabelValues(outcome).Observe(seconds)
}

// RecordProviderCall counts every call; skipped calls have no duration.
func (r *Recorder) RecordProviderCall(provider, call string, status models.CallStatus, seconds float64) {
	r.calls.WithLabelValues(provider, callLabel(call), string(status)).Inc()
	if status != models.CallSkipped {
		r.callTime.WithLabelValues(provider, callLabel(call)).Observe(seconds)
	}
}

func (r *Recorder) RecordConfidence(symbol, tf string, confidence float64) {
	r.confidence.WithLabelValues(symbol, tf).Set(confidence)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordPublished(backend, symbol string) {
	r.published.WithLabelValues(backend, symbol).Inc()
}

// callLabel folds "candles:<tf>" into "candles" to bound label cardinality.
func callLabel(call string) string {
	for i := 0; i < len(call); i++ {
		if call[i] == ':' {
			return call[:i]
		}
	}
	return call
}
