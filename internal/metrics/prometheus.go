// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default stage duration buckets in seconds; a stage may wait out several
// 60s rate limit pauses.
var defaultBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600}

// Manager owns the pipeline metrics. A nil *Manager is valid and records
// nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	pagesFetched  prometheus.Counter
	rateLimits    prometheus.Counter
	records       *prometheus.CounterVec
	loadedRows    prometheus.Counter
	qualityScore  prometheus.Gauge
	lastRunUnix   prometheus.Gauge
	jobsQueued    prometheus.Gauge
}

// NewManager creates a Manager on its own registry unless WithRegistry is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "paypal",
		subsystem:        "pipeline",
		histogramBuckets: defaultBuckets,
		constLabels:      map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_total",
		Help:        "Pipeline runs by final status and data source",
		ConstLabels: m.constLabels,
	}, []string{"status", "source"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_duration_seconds",
		Help:        "Duration of each pipeline stage",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.pagesFetched = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pages_fetched_total",
		Help:        "Reporting API pages fetched",
		ConstLabels: m.constLabels,
	})

	m.rateLimits = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rate_limit_waits_total",
		Help:        "HTTP 429 responses waited out",
		ConstLabels: m.constLabels,
	})

	m.records = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "records_total",
		Help:        "Records by outcome: extracted, normalized, failed",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.loadedRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "loaded_rows_total",
		Help:        "Rows written to the sink",
		ConstLabels: m.constLabels,
	})

	m.qualityScore = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "quality_score",
		Help:        "Total data quality score of the last validated run (0-100)",
		ConstLabels: m.constLabels,
	})

	m.lastRunUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_run_timestamp_seconds",
		Help:        "Unix time the last run finished",
		ConstLabels: m.constLabels,
	})

	m.jobsQueued = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_queued",
		Help:        "Run jobs waiting in the queue",
		ConstLabels: m.constLabels,
	})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PageFetched implements paypal.Observer.
func (m *Manager) PageFetched() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

// RateLimited implements paypal.Observer.
func (m *Manager) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimits.Inc()
}

// ObserveStage records how long a stage took.
func (m *Manager) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordExtracted counts raw records pulled from a source.
func (m *Manager) RecordExtracted(n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("extracted").Add(float64(n))
}

// RecordNormalized counts normalized and failed records.
func (m *Manager) RecordNormalized(ok, failed int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("normalized").Add(float64(ok))
	m.records.WithLabelValues("failed").Add(float64(failed))
}

// RecordLoaded counts rows written to the sink.
func (m *Manager) RecordLoaded(rows int64) {
	if m == nil {
		return
	}
	m.loadedRows.Add(float64(rows))
}

// SetQualityScore records the last total quality score.
func (m *Manager) SetQualityScore(score float64) {
	if m == nil {
		return
	}
	m.qualityScore.Set(score)
}

// RecordRun counts a finished run.
func (m *Manager) RecordRun(status, source string, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status, source).Inc()
	m.lastRunUnix.Set(float64(finished.Unix()))
}

// SetJobsQueued records the run queue length.
func (m *Manager) SetJobsQueued(n int) {
	if m == nil {
		return
	}
	m.jobsQueued.Set(float64(n))
}
