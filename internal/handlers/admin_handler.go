package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// AttemptQueryServiceInterface defines the read-only ledger view
type AttemptQueryServiceInterface interface {
	Summary(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error)
	TopIPs(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	TopDevices(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	ListAttempts(ctx context.Context, filter services.AttemptFilter) ([]*models.AttemptRecord, error)
}

// RetentionServiceInterface defines the cleanup operations
type RetentionServiceInterface interface {
	PurgeExpired(ctx context.Context) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AdminHandler handles operator queries and cleanup requests.
type AdminHandler struct {
	queries   AttemptQueryServiceInterface
	retention RetentionServiceInterface
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(queries AttemptQueryServiceInterface, retention RetentionServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{queries: queries, retention: retention, logger: logger}
}

// PurgeRequest is the body of POST /v1/admin/purge
type PurgeRequest struct {
	Cutoff *time.Time `json:"cutoff" validate:"required"`
}

// PurgeResponse reports how many records a purge removed
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// OffendersResponse wraps a top-offender listing
type OffendersResponse struct {
	Offenders []models.OffenderCount `json:"offenders"`
}

// AttemptsResponse wraps an attempt listing
type AttemptsResponse struct {
	Attempts []*models.AttemptRecord `json:"attempts"`
}

// rangeParams holds the common from/to/limit query parameters
type rangeParams struct {
	from, to time.Time
	limit    int
}

func parseRangeParams(q url.Values) (rangeParams, error) {
	var p rangeParams
	var err error

	if raw := q.Get("from"); raw != "" {
		if p.from, err = time.Parse(time.RFC3339, raw); err != nil {
			return p, fmt.Errorf("from must be an RFC 3339 timestamp")
		}
	}
	if raw := q.Get("to"); raw != "" {
		if p.to, err = time.Parse(time.RFC3339, raw); err != nil {
			return p, fmt.Errorf("to must be an RFC 3339 timestamp")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if p.limit, err = strconv.Atoi(raw); err != nil || p.limit < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
	}
	return p, nil
}

// GetSummary handles GET /v1/admin/summary
func (h *AdminHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	p, err := parseRangeParams(r.URL.Query())
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	summary, err := h.queries.Summary(r.Context(), p.from, p.to)
	if err != nil {
		writeServiceError(w, r, h.logger, "summary", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

// GetTopIPs handles GET /v1/admin/offenders/ips
func (h *AdminHandler) GetTopIPs(w http.ResponseWriter, r *http.Request) {
	p, err := parseRangeParams(r.URL.Query())
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	offenders, err := h.queries.TopIPs(r.Context(), p.from, p.to, p.limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "top ips", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, OffendersResponse{Offenders: offenders})
}

// GetTopDevices handles GET /v1/admin/offenders/devices
func (h *AdminHandler) GetTopDevices(w http.ResponseWriter, r *http.Request) {
	p, err := parseRangeParams(r.URL.Query())
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	offenders, err := h.queries.TopDevices(r.Context(), p.from, p.to, p.limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "top devices", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, OffendersResponse{Offenders: offenders})
}

// ListAttempts handles GET /v1/admin/attempts?ip=|identifier=
func (h *AdminHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parseRangeParams(q)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	attempts, err := h.queries.ListAttempts(r.Context(), services.AttemptFilter{
		IPAddress:  q.Get("ip"),
		Identifier: q.Get("identifier"),
		From:       p.from,
		To:         p.to,
		Limit:      p.limit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list attempts", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AttemptsResponse{Attempts: attempts})
}

// PurgeExpired handles POST /v1/admin/purge/expired
func (h *AdminHandler) PurgeExpired(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.retention.PurgeExpired(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "purge expired", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PurgeResponse{Deleted: deleted})
}

// PurgeOlderThan handles POST /v1/admin/purge
func (h *AdminHandler) PurgeOlderThan(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	deleted, err := h.retention.PurgeOlderThan(r.Context(), *req.Cutoff)
	if err != nil {
		writeServiceError(w, r, h.logger, "purge older than", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PurgeResponse{Deleted: deleted})
}
