package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trialscope"

// Metrics is the Prometheus instrumentation for the search and verification
// pipeline. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searchTotal          *prometheus.CounterVec
	searchDuration       *prometheus.HistogramVec
	searchResults        prometheus.Histogram
	oracleCalls          *prometheus.CounterVec
	oracleDuration       *prometheus.HistogramVec
	verificationIssues   *prometheus.CounterVec
	verificationDuration prometheus.Histogram
	cacheRequests        *prometheus.CounterVec
	supersededTotal      prometheus.Counter
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		searchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Search requests by retrieval strategy and outcome.",
			},
			[]string{"strategy", "status"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "End-to-end search latency by retrieval strategy.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		searchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "results",
				Help:      "Number of trials returned per search.",
				Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		oracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "calls_total",
				Help:      "LLM and embedding oracle calls by operation and outcome (ok, degraded).",
			},
			[]string{"operation", "outcome"},
		),
		oracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "duration_seconds",
				Help:      "Oracle call latency by operation.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		verificationIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "issues_total",
				Help:      "Verification issues raised by severity and check.",
			},
			[]string{"severity", "source"},
		),
		verificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "duration_seconds",
				Help:      "Answer verification latency.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Cache lookups by cache and result (hit, miss).",
			},
			[]string{"cache", "result"},
		),
		supersededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "superseded_queries_total",
				Help:      "Pipeline results discarded because a newer query started.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP API requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP API request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.searchTotal, m.searchDuration, m.searchResults,
		m.oracleCalls, m.oracleDuration,
		m.verificationIssues, m.verificationDuration,
		m.cacheRequests, m.supersededTotal,
		m.httpRequests, m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(strategy string, d time.Duration, results int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.searchTotal.WithLabelValues(strategy, status).Inc()
	m.searchDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
}

// ObserveSearchDegraded records a search that fell back to an empty result.
func (m *Metrics) ObserveSearchDegraded(strategy string) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(strategy, "degraded").Inc()
}

// ObserveOracle records an oracle call. outcome is "ok" or "degraded".
func (m *Metrics) ObserveOracle(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(operation, outcome).Inc()
	m.oracleDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveIssue records one verification issue.
func (m *Metrics) ObserveIssue(severity, source string) {
	if m == nil {
		return
	}
	m.verificationIssues.WithLabelValues(severity, source).Inc()
}

// ObserveVerification records one verification run.
func (m *Metrics) ObserveVerification(d time.Duration) {
	if m == nil {
		return
	}
	m.verificationDuration.Observe(d.Seconds())
}

// ObserveCache records a cache lookup. Its signature matches cache.Observer.
func (m *Metrics) ObserveCache(name string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(name, result).Inc()
}

// ObserveSuperseded records a discarded stale pipeline result.
func (m *Metrics) ObserveSuperseded() {
	if m == nil {
		return
	}
	m.supersededTotal.Inc()
}

// ObserveHTTP records one HTTP API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
