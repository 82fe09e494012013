// Package metrics exposes Prometheus metrics for jobs, providers and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a registry and the application metrics registered on it.
type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted   prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	published       *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, including Go runtime metrics.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_jobs_submitted_total",
			Help:      "Edit jobs accepted.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_jobs_finished_total",
			Help:      "Edit jobs that reached a terminal state.",
		}, []string{"state"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "edit_job_duration_seconds",
			Help:      "Time from processing to terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"state"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Calls to generative providers.",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Generative provider call latency.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"provider"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reels_published_total",
			Help:      "Edited reels uploaded to object storage.",
		}, []string{"outcome"}),
	}
}

// JobSubmitted implements jobs.Observer.
func (c *Collector) JobSubmitted() { c.jobsSubmitted.Inc() }

// JobFinished implements jobs.Observer.
func (c *Collector) JobFinished(state string, elapsed time.Duration) {
	c.jobsFinished.WithLabelValues(state).Inc()
	c.jobDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// ProviderCall implements generate.Observer.
func (c *Collector) ProviderCall(provider, outcome string, elapsed time.Duration) {
	c.providerCalls.WithLabelValues(provider, outcome).Inc()
	c.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordHTTPRequest counts one served request. path is the route template.
func (c *Collector) RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ReelPublished counts a publish attempt by the worker.
func (c *Collector) ReelPublished(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.published.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
