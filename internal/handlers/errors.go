package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

const (
	maxBodyBytes = 64 << 10

	// ledgerRetryAfter is the Retry-After hint sent with a ledger outage
	ledgerRetryAfter = 5
)

// decodeJSON reads a bounded JSON body into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return validateBody(dst)
}

// writeServiceError maps service errors onto the JSON error envelope
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidIdentifier),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrLedgerUnavailable):
		logger.ErrorContext(r.Context(), "ledger unavailable",
			slog.String("operation", op),
			slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Attempt ledger unavailable, retry shortly", ledgerRetryAfter)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("operation", op),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
