// Package metrics provides Prometheus collectors for the excellence engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the engine collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	// Scoring
	scoresComputed  prometheus.Counter
	scoreDuration   prometheus.Histogram
	scoreValue      prometheus.Histogram
	predictions     *prometheus.CounterVec
	predictionValue *prometheus.HistogramVec

	// Cache
	cacheResults *prometheus.CounterVec

	// Durability
	persistFailures *prometheus.CounterVec

	// Jobs
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(r *Recorder) { r.namespace = ns }
}

// WithRegistry registers collectors in reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) { r.registry = reg }
}

// WithBuckets overrides latency histogram buckets.
func WithBuckets(b []float64) Option {
	return func(r *Recorder) { r.buckets = b }
}

// Cache outcome label values.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheError       = "error"
	CacheBypass      = "bypass"
	CacheStoreFailed = "store_failed"
)

// New creates a Recorder with its collectors registered.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "prima_scholar",
		subsystem: "engine",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	f := promauto.With(r.registry)

	r.scoresComputed = f.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "scores_computed_total",
		Help: "Excellence scores computed.",
	})
	r.scoreDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name:    "score_duration_seconds",
		Help:    "Time to fetch metrics and compute one score.",
		Buckets: r.buckets,
	})
	r.scoreValue = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name:    "score_value",
		Help:    "Distribution of computed excellence scores.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
	r.predictions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name: "predictions_total",
		Help: "Distinction predictions served, by distinction and source.",
	}, []string{"distinction", "source"})
	r.predictionValue = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem,
		Name:    "prediction_probability",
		Help:    "Predicted achievement probability.",
		Buckets: prometheus.LinearBuckets(0, 10, 10),
	}, []string{"distinction"})
	r.cacheResults = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "cache",
		Name: "results_total",
		Help: "Prediction cache lookups by outcome.",
	}, []string{"result"})
	r.persistFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "persistence",
		Name: "failures_total",
		Help: "Best-effort writes that failed after retries.",
	}, []string{"operation"})
	r.jobRuns = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: "scheduler",
		Name: "job_runs_total",
		Help: "Scheduled job runs by job and status.",
	}, []string{"job", "status"})
	r.jobDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: "scheduler",
		Name:    "job_duration_seconds",
		Help:    "Scheduled job duration.",
		Buckets: r.buckets,
	}, []string{"job"})

	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ScoreComputed records one successful score computation.
func (r *Recorder) ScoreComputed(score float64, took time.Duration) {
	if r == nil {
		return
	}
	r.scoresComputed.Inc()
	r.scoreValue.Observe(score)
	r.scoreDuration.Observe(took.Seconds())
}

// PredictionServed records a prediction; cached tells whether it came from the cache.
func (r *Recorder) PredictionServed(distinction string, probability float64, cached bool) {
	if r == nil {
		return
	}
	source := "computed"
	if cached {
		source = "cache"
	}
	r.predictions.WithLabelValues(distinction, source).Inc()
	r.predictionValue.WithLabelValues(distinction).Observe(probability)
}

// CacheResult records a cache lookup outcome.
func (r *Recorder) CacheResult(result string) {
	if r == nil {
		return
	}
	r.cacheResults.WithLabelValues(result).Inc()
}

// CacheResults returns the lookup counter for one outcome.
func (r *Recorder) CacheResults(result string) prometheus.Counter {
	if r == nil {
		return nil
	}
	return r.cacheResults.WithLabelValues(result)
}

// PersistFailed records a best-effort write that was given up on.
func (r *Recorder) PersistFailed(operation string) {
	if r == nil {
		return
	}
	r.persistFailures.WithLabelValues(operation).Inc()
}

// JobFinished records a scheduled job run.
func (r *Recorder) JobFinished(job string, success bool, took time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	r.jobRuns.WithLabelValues(job, status).Inc()
	r.jobDuration.WithLabelValues(job).Observe(took.Seconds())
}
