// Package metrics provides Prometheus metrics for the database engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the engine exposes.
type Metrics struct {
	StatementsTotal      *prometheus.CounterVec
	StatementErrorsTotal *prometheus.CounterVec
	StatementLatency     *prometheus.HistogramVec

	ConstraintViolationsTotal *prometheus.CounterVec

	WALReplayOpsTotal   prometheus.Counter
	CommitConflictsTotal prometheus.Counter
	IndexSelfHealTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skepadb_statements_total",
			Help: "Total statements executed, by kind.",
		},
		[]string{"kind"},
	)

	m.StatementErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skepadb_statement_errors_total",
			Help: "Total statements that returned an error, by kind.",
		},
		[]string{"kind"},
	)

	m.StatementLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skepadb_statement_duration_seconds",
			Help:    "Statement execution latency, by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	m.ConstraintViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skepadb_constraint_violations_total",
			Help: "Constraint violations raised, by kind (not_null, unique, foreign_key).",
		},
		[]string{"kind"},
	)

	m.WALReplayOpsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skepadb_wal_replay_ops_total",
			Help: "Operations replayed from the write-ahead log at open time.",
		},
	)

	m.CommitConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skepadb_commit_conflicts_total",
			Help: "Commits aborted due to a detected cross-process conflict.",
		},
	)

	m.IndexSelfHealTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skepadb_index_self_heal_total",
			Help: "Index snapshots discarded in favor of a rebuild from row data, by table.",
		},
		[]string{"table"},
	)

	m.registry.MustRegister(
		m.StatementsTotal,
		m.StatementErrorsTotal,
		m.StatementLatency,
		m.ConstraintViolationsTotal,
		m.WALReplayOpsTotal,
		m.CommitConflictsTotal,
		m.IndexSelfHealTotal,
	)

	return m
}

// ObserveStatement records one statement's latency and outcome.
func (m *Metrics) ObserveStatement(kind string, elapsed time.Duration, err error) {
	m.StatementsTotal.WithLabelValues(kind).Inc()
	m.StatementLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		m.StatementErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// Handler returns the HTTP handler that serves this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
