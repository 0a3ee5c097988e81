// Package metrics exposes Prometheus collectors for analysis, training and
// risk assessment activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances (tests, embedded
// servers) never collide on the default registry.
type Collector struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	trainings        prometheus.Counter
	trainingDuration prometheus.Histogram
	modelLoads       prometheus.Counter
	assessments      *prometheus.CounterVec
	errors           *prometheus.CounterVec
	jobsActive       prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_analyses_total",
			Help: "Content analyses by prediction",
		}, []string{"prediction"}),
		analysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_analysis_duration_seconds",
			Help:    "Time spent analyzing one piece of content",
			Buckets: prometheus.DefBuckets,
		}),
		trainings: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_model_trainings_total",
			Help: "Classifier training runs",
		}),
		trainingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_model_training_duration_seconds",
			Help:    "Time spent training the classifier",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		modelLoads: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_model_loads_total",
			Help: "Classifier artifacts loaded from disk",
		}),
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_grc_assessments_total",
			Help: "GRC risk assessments by level",
		}, []string{"level"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_errors_total",
			Help: "Failures by kind",
		}, []string{"kind"}),
		jobsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_scan_jobs_active",
			Help: "Batch scan jobs currently running",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveAnalysis(prediction string, elapsed time.Duration) {
	c.analyses.WithLabelValues(prediction).Inc()
	c.analysisDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveAssessment(level string) {
	c.assessments.WithLabelValues(level).Inc()
}

func (c *Collector) ObserveError(kind string) {
	c.errors.WithLabelValues(kind).Inc()
}

func (c *Collector) JobStarted()  { c.jobsActive.Inc() }
func (c *Collector) JobFinished() { c.jobsActive.Dec() }

// ModelTrained implements model.Observer.
func (c *Collector) ModelTrained(samples int, elapsed time.Duration) {
	c.trainings.Inc()
	c.trainingDuration.Observe(elapsed.Seconds())
}

// ModelLoaded implements model.Observer.
func (c *Collector) ModelLoaded() {
	c.modelLoads.Inc()
}
