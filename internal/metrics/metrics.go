// Package metrics holds the Prometheus instrumentation for the gate service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authgate"

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	GateDecisionsTotal   *prometheus.CounterVec
	AttemptsTotal        *prometheus.CounterVec
	LockoutsTotal        *prometheus.CounterVec
	RiskLevelsTotal      *prometheus.CounterVec
	LedgerErrorsTotal    *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	SweepRunsTotal       *prometheus.CounterVec
	SweepDeletedTotal    *prometheus.CounterVec
	SweepDurationSeconds prometheus.Histogram
	AuditDroppedTotal    prometheus.Counter
}

// New registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Gate evaluations by channel and outcome (open, otp_required, blocked_identifier, blocked_ip).",
		}, []string{"channel", "decision"}),
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_recorded_total",
			Help:      "Recorded attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		LockoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "New lockout windows opened, by kind (identifier, otp, ip).",
		}, []string{"kind"}),
		RiskLevelsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments by level.",
		}, []string{"level"}),
		LedgerErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Ledger failures surfaced to callers, by operation.",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of gate and recorder operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SweepRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_runs_total",
			Help:      "Retention sweep runs by status.",
		}, []string{"status"}),
		SweepDeletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Ledger records deleted by the retention sweeper, by mode (expired, cutoff).",
		}, []string{"mode"}),
		SweepDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retention_duration_seconds",
			Help:      "Duration of retention sweep runs in seconds.",
		}),
		AuditDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Security events that could not be persisted.",
		}),
	}
}

// Handler serves the private registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveGate(channel, decision string, seconds float64) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(channel, decision).Inc()
	m.OperationDuration.WithLabelValues("gate_" + channel).Observe(seconds)
}

func (m *Metrics) ObserveAttempt(channel, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(channel, outcome).Inc()
	m.OperationDuration.WithLabelValues("record_" + channel).Observe(seconds)
}

func (m *Metrics) IncLockout(kind string) {
	if m == nil {
		return
	}
	m.LockoutsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRiskLevel(level string) {
	if m == nil {
		return
	}
	m.RiskLevelsTotal.WithLabelValues(level).Inc()
}

func (m *Metrics) IncLedgerError(operation string) {
	if m == nil {
		return
	}
	m.LedgerErrorsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveSweep(status string, seconds float64) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepDurationSeconds.Observe(seconds)
}

func (m *Metrics) AddSweepDeleted(mode string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepDeletedTotal.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedTotal.Inc()
}

// PoolStats is a point-in-time view of a connection pool
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
}

// RegisterPool exports pool gauges read from stats on every scrape
func (m *Metrics) RegisterPool(name string, stats func() PoolStats) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"pool": name}
	gauge := func(metric, help string, read func(PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(stats())) })
	}
	m.registry.MustRegister(
		gauge("db_pool_acquired_conns", "Connections currently in use.", func(s PoolStats) int32 { return s.Acquired }),
		gauge("db_pool_idle_conns", "Idle connections held by the pool.", func(s PoolStats) int32 { return s.Idle }),
		gauge("db_pool_total_conns", "All connections held by the pool.", func(s PoolStats) int32 { return s.Total }),
	)
}
