package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	requests      *prometheus.CounterVec
	warmups       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageOutcomes *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runs          *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	cache         *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg. Tests pass a
// fresh registry so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_source_requests_total",
				Help: "Requests to upstream sources by outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		warmups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_session_warmups_total",
				Help: "Session warm-ups by result",
			},
			[]string{"result"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipopulse_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		stageOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_stage_outcomes_total",
				Help: "Pipeline stage outcomes",
			},
			[]string{"stage", "status"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ipopulse_run_duration_seconds",
				Help:    "Duration of full pipeline runs",
				Buckets: []float64{1, 10, 30, 60, 300, 600, 1800},
			},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_runs_total",
				Help: "Pipeline runs by result",
			},
			[]string{"result"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_predictions_total",
				Help: "Persisted consensus predictions by recommendation",
			},
			[]string{"recommendation"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipopulse_prediction_cache_lookups_total",
				Help: "Fusion cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRequest counts one upstream request outcome.
func (r *Recorder) RecordRequest(endpoint, outcome string) {
	r.requests.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) RecordWarmup(success bool) {
	r.warmups.WithLabelValues(result(success)).Inc()
}

// RecordStage records a finished stage.
func (r *Recorder) RecordStage(stage, status string, seconds float64) {
	r.stageOutcomes.WithLabelValues(stage, status).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordRun(success bool, seconds float64) {
	r.runs.WithLabelValues(result(success)).Inc()
	r.runDuration.Observe(seconds)
}

func (r *Recorder) RecordPrediction(recommendation string) {
	r.predictions.WithLabelValues(recommendation).Inc()
}

func (r *Recorder) RecordCache(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	r.cache.WithLabelValues(label).Inc()
}
