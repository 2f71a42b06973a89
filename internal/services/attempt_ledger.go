package services

import (
	"context"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

// AttemptLedger is the append-only attempt store consulted on the hot path.
// Lookups that find nothing return a nil record and a nil error.
type AttemptLedger interface {
	Append(ctx context.Context, record *models.AttemptRecord) error

	CountFailures(ctx context.Context, channel models.Channel, identifier string, since time.Time) (int, error)
	CountFailuresByIP(ctx context.Context, channel models.Channel, ipAddress string, since time.Time) (int, error)
	LatestLockout(ctx context.Context, channel models.Channel, identifier string) (*models.AttemptRecord, error)

	// History lookups span both channels
	LastSuccess(ctx context.Context, identifier string) (*models.AttemptRecord, error)
	HasSeenDevice(ctx context.Context, identifier, deviceID string) (bool, error)
	HasSeenUserAgent(ctx context.Context, identifier, userAgent string) (bool, error)
	LastSeenForDevice(ctx context.Context, deviceID string, since time.Time) (*models.AttemptRecord, error)

	// Distinct counts include the extra value, when non-empty, as if it had already been recorded
	CountDistinctDevices(ctx context.Context, identifier string, since time.Time, including string) (int, error)
	CountDistinctIPs(ctx context.Context, identifier string, since time.Time, including string) (int, error)
	CountDistinctIdentifiersForDevice(ctx context.Context, deviceID string, since time.Time, including string) (int, error)
}

// RetentionLedger deletes aged records in bounded batches
type RetentionLedger interface {
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// AttemptQueryLedger serves the read-only admin surface
type AttemptQueryLedger interface {
	Summary(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error)
	TopIPs(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	TopDevices(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error)
	ListByIP(ctx context.Context, ipAddress string, from, to time.Time, limit int) ([]*models.AttemptRecord, error)
	ListByIdentifier(ctx context.Context, identifier string, from, to time.Time, limit int) ([]*models.AttemptRecord, error)
}

// IPLockoutStore keeps the first-trip deadline of an IP lockout so repeated
// gate reads report a stable countdown
type IPLockoutStore interface {
	// Get returns the stored deadline, or nil when none is active
	Get(ctx context.Context, ipAddress string) (*time.Time, error)
	// SetIfAbsent stores until unless an unexpired deadline already exists
	SetIfAbsent(ctx context.Context, ipAddress string, until time.Time) error
}

// SecurityEventSink receives audit events. Implementations must not block the caller
// on persistence and must swallow their own failures.
type SecurityEventSink interface {
	Emit(ctx context.Context, event *models.SecurityEvent)
}
