package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	predLatency   *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	demotions     *prometheus.CounterVec
	winProbErrors prometheus.Counter
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_predictions_total",
				Help: "Total predictions served, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		predLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optedge_prediction_duration_seconds",
				Help:    "End-to-end prediction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		fetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_marketdata_fetch_total",
				Help: "Upstream market data fetches, by source, kind and result",
			},
			[]string{"source", "kind", "result"},
		),
		cacheEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_cache_events_total",
				Help: "Cache hits and misses, by cache name",
			},
			[]string{"cache", "event"},
		),
		demotions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_source_demotions_total",
				Help: "Data source demotions after terminal errors",
			},
			[]string{"source"},
		),
		winProbErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "optedge_prediction_errors_total",
				Help: "Predictions that failed and returned a typed error",
			},
		),
	}
}

// RecordPrediction records a served prediction.
func (r *Recorder) RecordPrediction(strategy, outcome string, seconds float64) {
	r.predictions.WithLabelValues(strategy, outcome).Inc()
	r.predLatency.WithLabelValues(strategy).Observe(seconds)
}

// RecordFetch records an upstream market data fetch.
func (r *Recorder) RecordFetch(source, kind, result string) {
	r.fetches.WithLabelValues(source, kind, result).Inc()
}

// RecordCacheEvent records a cache hit or miss.
func (r *Recorder) RecordCacheEvent(cache, event string) {
	r.cacheEvents.WithLabelValues(cache, event).Inc()
}

// RecordDemotion records a source demotion.
func (r *Recorder) RecordDemotion(source string) {
	r.demotions.WithLabelValues(source).Inc()
}

// RecordPredictionError records a failed prediction.
func (r *Recorder) RecordPredictionError() {
	r.winProbErrors.Inc()
}
