// Package metrics exposes Prometheus instrumentation for FinGuard. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finguard"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	assessments        *prometheus.CounterVec
	assessmentDuration prometheus.Histogram
	riskScores         prometheus.Histogram
	patterns           *prometheus.CounterVec
	networks           prometheus.Counter
	alerts             *prometheus.CounterVec
	rejected           *prometheus.CounterVec
	batchFailures      prometheus.Counter
	cacheRequests      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Customer risk assessments by risk level.",
		}, []string{"level"}),
		assessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "Time to assemble one risk report.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		riskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of customer risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		patterns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_detected_total",
			Help:      "Detected laundering patterns by name.",
		}, []string{"pattern"}),
		networks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "networks_detected_total",
			Help:      "Smurf network candidates found.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Malformed records rejected at ingest by kind.",
		}, []string{"kind"}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Customers skipped by a batch run after a failure.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_requests_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.assessments,
		m.assessmentDuration,
		m.riskScores,
		m.patterns,
		m.networks,
		m.alerts,
		m.rejected,
		m.batchFailures,
		m.cacheRequests,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReport records one assessment.
func (m *Metrics) ObserveReport(r *domain.RiskReport, elapsed time.Duration) {
	if m == nil || r == nil {
		return
	}
	m.assessments.WithLabelValues(string(r.RiskLevel)).Inc()
	m.assessmentDuration.Observe(elapsed.Seconds())
	m.riskScores.Observe(r.RiskScore)
	for _, name := range r.DetectedPatterns() {
		m.patterns.WithLabelValues(name).Inc()
	}
}

// ObserveNetworks records a network detection run.
func (m *Metrics) ObserveNetworks(n int) {
	if m == nil {
		return
	}
	m.networks.Add(float64(n))
}

// AlertCreated records a new alert.
func (m *Metrics) AlertCreated(alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType).Inc()
}

// Rejected records a malformed record.
func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(kind).Inc()
}

// BatchFailure records a customer skipped by a batch run.
func (m *Metrics) BatchFailure() {
	if m == nil {
		return
	}
	m.batchFailures.Inc()
}

// CacheLookup records a report cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
