package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminHandler(q *handlers.MockAttemptQueryService, r *handlers.MockRetentionService) *handlers.AdminHandler {
	if q == nil {
		q = &handlers.MockAttemptQueryService{}
	}
	if r == nil {
		r = &handlers.MockRetentionService{}
	}
	return handlers.NewAdminHandler(q, r, quietLogger())
}

func TestGetSummary_PassesRange(t *testing.T) {
	var gotFrom, gotTo time.Time
	h := newAdminHandler(&handlers.MockAttemptQueryService{
		SummaryFunc: func(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
			gotFrom, gotTo = from, to
			return &models.AttemptSummary{From: from, To: to, Total: 7, Failures: 5, Lockouts: 1}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.GetSummary(w, httptest.NewRequest("GET", "/v1/admin/summary?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z", nil))

	var resp models.AttemptSummary
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(7), resp.Total)
	assert.Equal(t, int64(1), resp.Lockouts)
	assert.True(t, gotFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, gotTo.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestGetSummary_DefaultsLeftToService(t *testing.T) {
	var gotFrom, gotTo time.Time
	h := newAdminHandler(&handlers.MockAttemptQueryService{
		SummaryFunc: func(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
			gotFrom, gotTo = from, to
			return &models.AttemptSummary{}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.GetSummary(w, httptest.NewRequest("GET", "/v1/admin/summary", nil))

	assert.Equal(t, 200, w.Code)
	assert.True(t, gotFrom.IsZero())
	assert.True(t, gotTo.IsZero())
}

func TestAdminHandler_BadQueryParams(t *testing.T) {
	h := newAdminHandler(nil, nil)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"bad from", "from=yesterday", "from"},
		{"bad to", "to=2026-13-01", "to"},
		{"zero limit", "limit=0", "limit"},
		{"negative limit", "limit=-3", "limit"},
		{"text limit", "limit=ten", "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.GetTopIPs(w, httptest.NewRequest("GET", "/v1/admin/offenders/ips?"+tt.query, nil))

			handlers.AssertErrorResponse(t, w, 400, "bad_request")
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestAdminHandler_InvertedRange(t *testing.T) {
	h := newAdminHandler(&handlers.MockAttemptQueryService{
		SummaryFunc: func(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
			return nil, models.ErrInvalidTimeRange
		},
	}, nil)

	w := httptest.NewRecorder()
	h.GetSummary(w, httptest.NewRequest("GET", "/v1/admin/summary?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", nil))

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestGetTopOffenders(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ipLimit, deviceLimit int
	h := newAdminHandler(&handlers.MockAttemptQueryService{
		TopIPsFunc: func(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
			ipLimit = limit
			return []models.OffenderCount{{Key: "203.0.113.7", Failures: 9, LastFailedAt: last}}, nil
		},
		TopDevicesFunc: func(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
			deviceLimit = limit
			return []models.OffenderCount{{Key: "dev-1", Failures: 4, LastFailedAt: last}}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.GetTopIPs(w, httptest.NewRequest("GET", "/v1/admin/offenders/ips?limit=10", nil))

	var ips handlers.OffendersResponse
	handlers.AssertJSONResponse(t, w, 200, &ips)
	require.Len(t, ips.Offenders, 1)
	assert.Equal(t, "203.0.113.7", ips.Offenders[0].Key)
	assert.Equal(t, int64(9), ips.Offenders[0].Failures)
	assert.Equal(t, 10, ipLimit)

	w = httptest.NewRecorder()
	h.GetTopDevices(w, httptest.NewRequest("GET", "/v1/admin/offenders/devices", nil))

	var devices handlers.OffendersResponse
	handlers.AssertJSONResponse(t, w, 200, &devices)
	require.Len(t, devices.Offenders, 1)
	assert.Equal(t, "dev-1", devices.Offenders[0].Key)
	assert.Zero(t, deviceLimit)
}

func TestListAttempts(t *testing.T) {
	var got services.AttemptFilter
	h := newAdminHandler(&handlers.MockAttemptQueryService{
		ListAttemptsFunc: func(ctx context.Context, filter services.AttemptFilter) ([]*models.AttemptRecord, error) {
			got = filter
			if filter.IPAddress == "" && filter.Identifier == "" {
				return nil, fmt.Errorf("%w: exactly one of ip or identifier is required", models.ErrBadRequest)
			}
			return []*models.AttemptRecord{{Identifier: "a@x.com", IPAddress: filter.IPAddress, Channel: models.ChannelLogin}}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.ListAttempts(w, httptest.NewRequest("GET", "/v1/admin/attempts?ip=203.0.113.7&limit=5", nil))

	var resp handlers.AttemptsResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "a@x.com", resp.Attempts[0].Identifier)
	assert.Equal(t, "203.0.113.7", got.IPAddress)
	assert.Empty(t, got.Identifier)
	assert.Equal(t, 5, got.Limit)

	w = httptest.NewRecorder()
	h.ListAttempts(w, httptest.NewRequest("GET", "/v1/admin/attempts", nil))
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestPurgeOlderThan(t *testing.T) {
	var gotCutoff time.Time
	h := newAdminHandler(nil, &handlers.MockRetentionService{
		PurgeOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 42, nil
		},
	})

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	w := httptest.NewRecorder()
	h.PurgeOlderThan(w, handlers.NewTestRequest(t, "POST", "/v1/admin/purge", handlers.PurgeRequest{Cutoff: &cutoff}))

	var resp handlers.PurgeResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(42), resp.Deleted)
	assert.True(t, gotCutoff.Equal(cutoff))
}

func TestPurgeOlderThan_CutoffRequired(t *testing.T) {
	called := false
	h := newAdminHandler(nil, &handlers.MockRetentionService{
		PurgeOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			called = true
			return 0, nil
		},
	})

	w := httptest.NewRecorder()
	h.PurgeOlderThan(w, handlers.NewTestRequest(t, "POST", "/v1/admin/purge", map[string]string{}))

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
	assert.Contains(t, w.Body.String(), "cutoff")
	assert.False(t, called)
}

func TestPurgeExpired(t *testing.T) {
	tests := []struct {
		name   string
		result int64
		err    error
		status int
	}{
		{"deleted", 12, nil, 200},
		{"ledger outage", 3, fmt.Errorf("%w: delete expired: %w", models.ErrLedgerUnavailable, errors.New("conn reset")), 503},
		{"unexpected", 0, errors.New("boom"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAdminHandler(nil, &handlers.MockRetentionService{
				PurgeExpiredFunc: func(ctx context.Context) (int64, error) {
					return tt.result, tt.err
				},
			})

			w := httptest.NewRecorder()
			h.PurgeExpired(w, httptest.NewRequest("POST", "/v1/admin/purge/expired", nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.err == nil {
				assert.JSONEq(t, `{"deleted":12}`, w.Body.String())
			}
		})
	}
}
