package services

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

const (
	defaultQueryLimit  = 50
	maxQueryLimit      = 500
	defaultQueryWindow = 24 * time.Hour
)

// AttemptFilter selects attempts by exactly one of IP address or identifier
type AttemptFilter struct {
	IPAddress  string
	Identifier string
	From       time.Time
	To         time.Time
	Limit      int
}

// AttemptQueryService serves the read-only admin view of the ledger
type AttemptQueryService struct {
	ledger AttemptQueryLedger
	now    func() time.Time
}

// NewAttemptQueryService creates a new AttemptQueryService
func NewAttemptQueryService(ledger AttemptQueryLedger) *AttemptQueryService {
	return &AttemptQueryService{ledger: ledger, now: time.Now}
}

// resolveRange defaults an open range to the last 24 hours ending now
func (s *AttemptQueryService) resolveRange(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultQueryWindow)
	}
	if !from.Before(to) {
		return from, to, models.ErrInvalidTimeRange
	}
	return from, to, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// Summary counts ledger activity in [from, to)
func (s *AttemptQueryService) Summary(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
	from, to, err := s.resolveRange(from, to)
	if err != nil {
		return nil, err
	}

	summary, err := s.ledger.Summary(ctx, from, to)
	if err != nil {
		return nil, ledgerError("summary", err)
	}
	return summary, nil
}

// TopIPs returns the IPs with the most failures in range
func (s *AttemptQueryService) TopIPs(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	from, to, err := s.resolveRange(from, to)
	if err != nil {
		return nil, err
	}

	offenders, err := s.ledger.TopIPs(ctx, from, to, clampLimit(limit))
	if err != nil {
		return nil, ledgerError("top ips", err)
	}
	return offenders, nil
}

// TopDevices returns the devices with the most failures in range
func (s *AttemptQueryService) TopDevices(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	from, to, err := s.resolveRange(from, to)
	if err != nil {
		return nil, err
	}

	offenders, err := s.ledger.TopDevices(ctx, from, to, clampLimit(limit))
	if err != nil {
		return nil, ledgerError("top devices", err)
	}
	return offenders, nil
}

// ListAttempts returns the newest attempts matching the filter
func (s *AttemptQueryService) ListAttempts(ctx context.Context, filter AttemptFilter) ([]*models.AttemptRecord, error) {
	from, to, err := s.resolveRange(filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(filter.Limit)
	identifier := models.NormalizeIdentifier(filter.Identifier)

	var records []*models.AttemptRecord
	switch {
	case filter.IPAddress != "" && identifier != "":
		return nil, fmt.Errorf("%w: filter by ip or identifier, not both", models.ErrBadRequest)
	case filter.IPAddress != "":
		records, err = s.ledger.ListByIP(ctx, filter.IPAddress, from, to, limit)
	case identifier != "":
		records, err = s.ledger.ListByIdentifier(ctx, identifier, from, to, limit)
	default:
		return nil, fmt.Errorf("%w: ip or identifier is required", models.ErrBadRequest)
	}
	if err != nil {
		return nil, ledgerError("list attempts", err)
	}
	return records, nil
}
