package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// GateServiceInterface defines the interface for gate business logic
type GateServiceInterface interface {
	EvaluateGate(ctx context.Context, req services.GateRequest) (*models.GateDecision, error)
	EvaluateOtpGate(ctx context.Context, identifier string) (*models.OtpGateDecision, error)
	RecordAttempt(ctx context.Context, req services.AttemptRequest) (*models.AttemptDecision, error)
	RecordOtpAttempt(ctx context.Context, req services.AttemptRequest) (*models.OtpAttemptDecision, error)
}

// GateHandler serves the pre-authentication gate and attempt recording endpoints
type GateHandler struct {
	service GateServiceInterface
	logger  *slog.Logger
	now     func() time.Time
}

// NewGateHandler creates a new GateHandler
func NewGateHandler(service GateServiceInterface, logger *slog.Logger) *GateHandler {
	return &GateHandler{service: service, logger: logger, now: time.Now}
}

// Request DTOs

// GateRequest is the provenance of an attempt about to be authenticated
type GateRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	IPAddress  string `json:"ip" validate:"omitempty,ip"`
	DeviceID   string `json:"device_id" validate:"omitempty,max=128"`
	UserAgent  string `json:"user_agent" validate:"omitempty,max=512"`
}

// AttemptRequest reports the authenticator's verdict on an attempt
type AttemptRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	Success    *bool  `json:"success" validate:"required"`
	ActorID    string `json:"actor_id" validate:"omitempty,max=128"`
	IPAddress  string `json:"ip" validate:"omitempty,ip"`
	DeviceID   string `json:"device_id" validate:"omitempty,max=128"`
	UserAgent  string `json:"user_agent" validate:"omitempty,max=512"`
}

// OtpGateRequest asks whether a second-factor attempt may proceed
type OtpGateRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
}

// Response DTOs carry the decision plus a countdown when blocked

type GateResponse struct {
	*models.GateDecision
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

type OtpGateResponse struct {
	*models.OtpGateDecision
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

type AttemptResponse struct {
	*models.AttemptDecision
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

type OtpAttemptResponse struct {
	*models.OtpAttemptDecision
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

func (a AttemptRequest) toService() services.AttemptRequest {
	return services.AttemptRequest{
		Identifier: a.Identifier,
		Success:    *a.Success,
		ActorID:    a.ActorID,
		IPAddress:  a.IPAddress,
		DeviceID:   a.DeviceID,
		UserAgent:  a.UserAgent,
	}
}

// retryAfter sets the Retry-After header for a blocked decision and returns the seconds left
func (h *GateHandler) retryAfter(w http.ResponseWriter, blocked bool, until *time.Time) int {
	if !blocked {
		return 0
	}
	secs := models.RetryAfter(until, h.now())
	if secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	return secs
}

// EvaluateGate handles POST /v1/gate
func (h *GateHandler) EvaluateGate(w http.ResponseWriter, r *http.Request) {
	var req GateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.service.EvaluateGate(r.Context(), services.GateRequest{
		Identifier: req.Identifier,
		IPAddress:  req.IPAddress,
		DeviceID:   req.DeviceID,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "evaluate gate", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, GateResponse{
		GateDecision:      decision,
		RetryAfterSeconds: h.retryAfter(w, decision.Blocked, decision.BlockedUntil),
	})
}

// RecordAttempt handles POST /v1/attempts
func (h *GateHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.service.RecordAttempt(r.Context(), req.toService())
	if err != nil {
		writeServiceError(w, r, h.logger, "record attempt", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, AttemptResponse{
		AttemptDecision:   decision,
		RetryAfterSeconds: h.retryAfter(w, decision.Blocked, decision.BlockedUntil),
	})
}

// EvaluateOtpGate handles POST /v1/otp/gate
func (h *GateHandler) EvaluateOtpGate(w http.ResponseWriter, r *http.Request) {
	var req OtpGateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.service.EvaluateOtpGate(r.Context(), req.Identifier)
	if err != nil {
		writeServiceError(w, r, h.logger, "evaluate otp gate", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, OtpGateResponse{
		OtpGateDecision:   decision,
		RetryAfterSeconds: h.retryAfter(w, decision.Blocked, decision.BlockedUntil),
	})
}

// RecordOtpAttempt handles POST /v1/otp/attempts
func (h *GateHandler) RecordOtpAttempt(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.service.RecordOtpAttempt(r.Context(), req.toService())
	if err != nil {
		writeServiceError(w, r, h.logger, "record otp attempt", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, OtpAttemptResponse{
		OtpAttemptDecision: decision,
		RetryAfterSeconds:  h.retryAfter(w, decision.Blocked, decision.BlockedUntil),
	})
}
