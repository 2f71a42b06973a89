package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveGate("login", "open", 0.01)
		m.ObserveAttempt("login", "failure", 0.01)
		m.IncLockout("identifier")
		m.IncRiskLevel("HIGH")
		m.IncLedgerError("append")
		m.ObserveSweep("success", 1)
		m.AddSweepDeleted("expired", 3)
		m.IncAuditDropped()
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()

	m.ObserveGate("login", "blocked_ip", 0.002)
	m.ObserveGate("login", "blocked_ip", 0.002)
	m.IncLockout("identifier")
	m.AddSweepDeleted("cutoff", 7)
	m.AddSweepDeleted("cutoff", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("login", "blocked_ip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockoutsTotal.WithLabelValues("identifier")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.SweepDeletedTotal.WithLabelValues("cutoff")))
}

func TestMetrics_HandlerServesPrivateRegistry(t *testing.T) {
	m := metrics.New()
	m.IncRiskLevel("HIGH")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `authgate_risk_assessments_total{level="HIGH"} 1`)
}

func TestMetrics_RegisterPool(t *testing.T) {
	m := metrics.New()
	acquired := int32(2)
	m.RegisterPool("ledger", func() metrics.PoolStats {
		return metrics.PoolStats{Acquired: acquired, Idle: 3, Total: 5}
	})
	acquired = 4

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `authgate_db_pool_acquired_conns{pool="ledger"} 4`)
	assert.Contains(t, body, `authgate_db_pool_total_conns{pool="ledger"} 5`)

	var nilMetrics *metrics.Metrics
	assert.NotPanics(t, func() { nilMetrics.RegisterPool("ledger", nil) })
}
