package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockGateService implements GateServiceInterface for testing
type MockGateService struct {
	EvaluateGateFunc     func(ctx context.Context, req services.GateRequest) (*models.GateDecision, error)
	EvaluateOtpGateFunc  func(ctx context.Context, identifier string) (*models.OtpGateDecision, error)
	RecordAttemptFunc    func(ctx context.Context, req services.AttemptRequest) (*models.AttemptDecision, error)
	RecordOtpAttemptFunc func(ctx context.Context, req services.AttemptRequest) (*models.OtpAttemptDecision, error)
}

func (m *MockGateService) EvaluateGate(ctx context.Context, req services.GateRequest) (*models.GateDecision, error) {
	if m.EvaluateGateFunc == nil {
		return &models.GateDecision{}, nil
	}
	return m.EvaluateGateFunc(ctx, req)
}

func (m *MockGateService) EvaluateOtpGate(ctx context.Context, identifier string) (*models.OtpGateDecision, error) {
	if m.EvaluateOtpGateFunc == nil {
		return &models.OtpGateDecision{}, nil
	}
	return m.EvaluateOtpGateFunc(ctx, identifier)
}

func (m *MockGateService) RecordAttempt(ctx context.Context, req services.AttemptRequest) (*models.AttemptDecision, error) {
	if m.RecordAttemptFunc == nil {
		return &models.AttemptDecision{Risk: &models.RiskAssessment{Level: models.RiskLevelLow}}, nil
	}
	return m.RecordAttemptFunc(ctx, req)
}

func (m *MockGateService) RecordOtpAttempt(ctx context.Context, req services.AttemptRequest) (*models.OtpAttemptDecision, error) {
	if m.RecordOtpAttemptFunc == nil {
		return &models.OtpAttemptDecision{Risk: &models.RiskAssessment{Level: models.RiskLevelLow}}, nil
	}
	return m.RecordOtpAttemptFunc(ctx, req)
}

// MockAttemptQueryService implements AttemptQueryServiceInterface for testing
type MockAttemptQueryService struct {
	SummaryFunc      func(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error)
	TopIPsFunc       func(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	TopDevicesFunc   func(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	ListAttemptsFunc func(ctx context.Context, filter services.AttemptFilter) ([]*models.AttemptRecord, error)
}

func (m *MockAttemptQueryService) Summary(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
	if m.SummaryFunc == nil {
		return &models.AttemptSummary{From: from, To: to}, nil
	}
	return m.SummaryFunc(ctx, from, to)
}

func (m *MockAttemptQueryService) TopIPs(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	if m.TopIPsFunc == nil {
		return []models.OffenderCount{}, nil
	}
	return m.TopIPsFunc(ctx, from, to, limit)
}

func (m *MockAttemptQueryService) TopDevices(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	if m.TopDevicesFunc == nil {
		return []models.OffenderCount{}, nil
	}
	return m.TopDevicesFunc(ctx, from, to, limit)
}

func (m *MockAttemptQueryService) ListAttempts(ctx context.Context, filter services.AttemptFilter) ([]*models.AttemptRecord, error) {
	if m.ListAttemptsFunc == nil {
		return []*models.AttemptRecord{}, nil
	}
	return m.ListAttemptsFunc(ctx, filter)
}

// MockRetentionService implements RetentionServiceInterface for testing
type MockRetentionService struct {
	PurgeExpiredFunc   func(ctx context.Context) (int64, error)
	PurgeOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockRetentionService) PurgeExpired(ctx context.Context) (int64, error) {
	if m.PurgeExpiredFunc == nil {
		return 0, nil
	}
	return m.PurgeExpiredFunc(ctx)
}

func (m *MockRetentionService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgeOlderThanFunc == nil {
		return 0, nil
	}
	return m.PurgeOlderThanFunc(ctx, cutoff)
}
