package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queriesTotal   *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	activeSessions prometheus.Gauge
	evictedTotal   prometheus.Counter
	archivedTotal  prometheus.Counter
	turnsTotal     *prometheus.CounterVec

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	toolExecutionTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "queries_total",
					Help: "Total submitted queries by terminal status.",
				},
				[]string{"status"},
			),
			queryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "query_duration_seconds",
					Help:    "End-to-end query duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current number of transcripts held in memory.",
				},
			),
			evictedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_evicted_total",
					Help: "Total transcripts removed by the retention janitor.",
				},
			),
			archivedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_archived_total",
					Help: "Total transcripts persisted to the archive.",
				},
			),
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turns_emitted_total",
					Help: "Total turns appended to transcripts by kind.",
				},
				[]string{"kind"},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_calls_total",
					Help: "Total agent backend calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_duration_seconds",
					Help:    "Agent backend call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
		}

		prometheus.MustRegister(
			m.queriesTotal,
			m.queryDuration,
			m.activeSessions,
			m.evictedTotal,
			m.archivedTotal,
			m.turnsTotal,
			m.providerCallTotal,
			m.providerCallDuration,
			m.toolExecutionTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQuery(status string, duration time.Duration) {
	m := getMetrics()
	m.queriesTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordEvictions(count int) {
	getMetrics().evictedTotal.Add(float64(count))
}

func RecordArchived() {
	getMetrics().archivedTotal.Inc()
}

func RecordTurn(kind string) {
	getMetrics().turnsTotal.WithLabelValues(kind).Inc()
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerCallTotal.WithLabelValues(provider, status).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolExecution(tool string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().toolExecutionTotal.WithLabelValues(tool, status).Inc()
}
