// Package observability holds the Prometheus metrics of the answer pipelines.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline labels.
const (
	PipelineChat = "chat"
	PipelineSolo = "solo"
	PipelineAsk  = "ask"
)

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	deltas       *prometheus.CounterVec
	citations    *prometheus.CounterVec
	sqlFallback  *prometheus.CounterVec
	ttsFailures  prometheus.Counter
}

// NewMetrics registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: pipeline, outcome (ok, error, empty, tabular, config_error)
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Answer pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),
		// Labels: stage (retrieval, generation, ...)
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragflow",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		deltas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Subsystem: "stream",
			Name:      "deltas_total",
			Help:      "Streamed answer deltas released by the throttle",
		}, []string{"pipeline"}),
		// Labels: mode (self_cited, inserted, none, disabled)
		citations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Subsystem: "citation",
			Name:      "resolutions_total",
			Help:      "Citation resolutions by how markers were obtained",
		}, []string{"mode"}),
		// Labels: result (answered, rejected, failed, empty)
		sqlFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Subsystem: "sql_fallback",
			Name:      "attempts_total",
			Help:      "Tabular fallback attempts by result",
		}, []string{"result", "retried"}),
		ttsFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ragflow",
			Subsystem: "tts",
			Name:      "failures_total",
			Help:      "Speech synthesis failures",
		}),
	}
}

// Request counts one pipeline run.
func (m *Metrics) Request(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(pipeline, outcome).Inc()
}

// Stage observes the duration of a pipeline stage.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Delta counts one streamed delta.
func (m *Metrics) Delta(pipeline string) {
	if m == nil {
		return
	}
	m.deltas.WithLabelValues(pipeline).Inc()
}

// Citation counts one citation resolution.
func (m *Metrics) Citation(mode string) {
	if m == nil {
		return
	}
	m.citations.WithLabelValues(mode).Inc()
}

// SQLFallback counts one tabular fallback attempt.
func (m *Metrics) SQLFallback(result string, retried bool) {
	if m == nil {
		return
	}
	r := "false"
	if retried {
		r = "true"
	}
	m.sqlFallback.WithLabelValues(result, r).Inc()
}

// TTSFailure counts one failed speech synthesis.
func (m *Metrics) TTSFailure() {
	if m == nil {
		return
	}
	m.ttsFailures.Inc()
}
