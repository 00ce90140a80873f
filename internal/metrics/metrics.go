// Package metrics exposes worker counters over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	jobs            *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	pipelineSeconds prometheus.Histogram
	cleanupFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocr_jobs_total",
			Help: "Jobs that reached the pipeline, by final status.",
		}, []string{"status"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocr_job_errors_total",
			Help: "Jobs that failed outside the pipeline, by error kind.",
		}, []string{"kind"}),
		pipelineSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocr_pipeline_duration_seconds",
			Help:    "Wall time of pipeline invocations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocr_cleanup_failures_total",
			Help: "Ephemeral paths that could not be removed.",
		}),
	}
	m.registry.MustRegister(
		m.jobs,
		m.jobErrors,
		m.pipelineSeconds,
		m.cleanupFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// The record methods are safe on a nil receiver so callers can run without metrics.

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

func (m *Metrics) JobErrored(kind string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PipelineRan(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineSeconds.Observe(d.Seconds())
}

func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// Router serves /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}
