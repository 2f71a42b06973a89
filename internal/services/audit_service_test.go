package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_PersistsEvents(t *testing.T) {
	var mu sync.Mutex
	var stored []*models.SecurityEvent
	repo := &services.MockSecurityEventRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			mu.Lock()
			defer mu.Unlock()
			stored = append(stored, event)
			return nil
		},
	}
	svc := services.NewAuditService(repo, quietLogger(), nil)

	svc.Emit(context.Background(), &models.SecurityEvent{
		ID:       "evt-1",
		Action:   models.ActionLoginAttempt,
		Severity: models.SeverityWarning,
		Context: models.SecurityContext{
			Identifier: "a@x.com",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Blocked:    true,
		},
		OccurredAt: t0,
	})
	svc.Close()

	require.Len(t, stored, 1)
	assert.Equal(t, "evt-1", stored[0].ID)
	assert.Contains(t, stored[0].Context.DeviceLabel, "Chrome on Windows")
}

func TestAuditService_FailuresNeverPropagate(t *testing.T) {
	repo := &services.MockSecurityEventRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			return errors.New("insert failed")
		},
	}
	m := metrics.New()
	svc := services.NewAuditService(repo, quietLogger(), m)

	svc.Emit(context.Background(), &models.SecurityEvent{Action: models.ActionLoginGate})
	svc.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditDroppedTotal))
}

func TestAuditService_EmitAfterClose(t *testing.T) {
	m := metrics.New()
	svc := services.NewAuditService(&services.MockSecurityEventRepository{}, quietLogger(), m)
	svc.Close()
	svc.Close()

	assert.NotPanics(t, func() {
		svc.Emit(context.Background(), &models.SecurityEvent{Action: models.ActionLoginGate})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditDroppedTotal))
}

func TestAuditService_LogOnly(t *testing.T) {
	svc := services.NewAuditService(nil, quietLogger(), nil)
	defer svc.Close()

	assert.NotPanics(t, func() {
		svc.Emit(context.Background(), &models.SecurityEvent{Action: models.ActionLedgerPurge})
	})
}

func TestDeviceLabel(t *testing.T) {
	assert.Equal(t, "Unknown Device", services.DeviceLabel(""))
	assert.Contains(t, services.DeviceLabel("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"), "Firefox on ")
}
