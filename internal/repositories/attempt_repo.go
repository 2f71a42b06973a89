package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const attemptColumns = `id, channel, identifier, attempted_at, outcome, actor_id, ip_address,
	device_id, user_agent, requires_otp, temporary_blocked, blocked_until, expires_at`

// AttemptRepository is the Postgres attempt ledger. The table is append-only;
// rows leave it only through the batched delete methods.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{pool: db.Pool}
}

func scanAttemptRow(row rowScanner) (*models.AttemptRecord, error) {
	var a models.AttemptRecord

	err := row.Scan(
		&a.ID, &a.Channel, &a.Identifier, &a.AttemptedAt, &a.Outcome, &a.ActorID, &a.IPAddress,
		&a.DeviceID, &a.UserAgent, &a.RequiresOTP, &a.TemporaryBlocked, &a.BlockedUntil, &a.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.AttemptRecord, error) {
	defer rows.Close()

	records := make([]*models.AttemptRecord, 0)
	for rows.Next() {
		a, err := scanAttemptRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}
	return records, nil
}

// queryOne returns nil, nil when no row matches
func (r *AttemptRepository) queryOne(ctx context.Context, query string, args ...any) (*models.AttemptRecord, error) {
	a, err := scanAttemptRow(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *AttemptRepository) queryCount(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// Append inserts a new attempt record
func (r *AttemptRepository) Append(ctx context.Context, a *models.AttemptRecord) error {
	query := `
		INSERT INTO auth_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Channel, a.Identifier, a.AttemptedAt, a.Outcome, a.ActorID, a.IPAddress,
		a.DeviceID, a.UserAgent, a.RequiresOTP, a.TemporaryBlocked, a.BlockedUntil, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// CountFailures counts failed attempts for an identifier on one channel since a time
func (r *AttemptRepository) CountFailures(ctx context.Context, channel models.Channel, identifier string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_attempts
		WHERE channel = $1 AND identifier = $2 AND outcome = 'failure' AND attempted_at >= $3
	`
	return r.queryCount(ctx, query, channel, identifier, since)
}

// CountFailuresByIP counts failed attempts from an IP on one channel since a time
func (r *AttemptRepository) CountFailuresByIP(ctx context.Context, channel models.Channel, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_attempts
		WHERE channel = $1 AND ip_address = $2 AND outcome = 'failure' AND attempted_at >= $3
	`
	return r.queryCount(ctx, query, channel, ipAddress, since)
}

// LatestLockout returns the newest lockout-carrying record for an identifier
func (r *AttemptRepository) LatestLockout(ctx context.Context, channel models.Channel, identifier string) (*models.AttemptRecord, error) {
	query := `
		SELECT ` + attemptColumns + ` FROM auth_attempts
		WHERE channel = $1 AND identifier = $2 AND temporary_blocked
		ORDER BY attempted_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, channel, identifier)
}

// LastSuccess returns the newest successful attempt on any channel
func (r *AttemptRepository) LastSuccess(ctx context.Context, identifier string) (*models.AttemptRecord, error) {
	query := `
		SELECT ` + attemptColumns + ` FROM auth_attempts
		WHERE identifier = $1 AND outcome = 'success'
		ORDER BY attempted_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, identifier)
}

// HasSeenDevice reports whether the identifier has any record from the device
func (r *AttemptRepository) HasSeenDevice(ctx context.Context, identifier, deviceID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM auth_attempts WHERE identifier = $1 AND device_id = $2)`

	var seen bool
	err := r.pool.QueryRow(ctx, query, identifier, deviceID).Scan(&seen)
	return seen, database.MapPostgresError(err)
}

// HasSeenUserAgent reports whether the identifier has any record with the user agent
func (r *AttemptRepository) HasSeenUserAgent(ctx context.Context, identifier, userAgent string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM auth_attempts WHERE identifier = $1 AND user_agent = $2)`

	var seen bool
	err := r.pool.QueryRow(ctx, query, identifier, userAgent).Scan(&seen)
	return seen, database.MapPostgresError(err)
}

// LastSeenForDevice returns the newest record for a device under any identifier
func (r *AttemptRepository) LastSeenForDevice(ctx context.Context, deviceID string, since time.Time) (*models.AttemptRecord, error) {
	query := `
		SELECT ` + attemptColumns + ` FROM auth_attempts
		WHERE device_id = $1 AND attempted_at >= $2
		ORDER BY attempted_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, deviceID, since)
}

// distinctQuery counts distinct non-empty values of column among rows matching
// filterColumn, plus the optional extra value. Column names are constants.
func distinctQuery(column, filterColumn string) string {
	return fmt.Sprintf(`
		SELECT COUNT(DISTINCT v) FROM (
			SELECT %[1]s AS v FROM auth_attempts
			WHERE %[2]s = $1 AND attempted_at >= $2 AND %[1]s <> ''
			UNION ALL
			SELECT $3::text WHERE $3::text <> ''
		) s
	`, column, filterColumn)
}

var (
	distinctDevicesQuery     = distinctQuery("device_id", "identifier")
	distinctIPsQuery         = distinctQuery("ip_address", "identifier")
	distinctIdentifiersQuery = distinctQuery("identifier", "device_id")
)

func (r *AttemptRepository) CountDistinctDevices(ctx context.Context, identifier string, since time.Time, including string) (int, error) {
	return r.queryCount(ctx, distinctDevicesQuery, identifier, since, including)
}

func (r *AttemptRepository) CountDistinctIPs(ctx context.Context, identifier string, since time.Time, including string) (int, error) {
	return r.queryCount(ctx, distinctIPsQuery, identifier, since, including)
}

func (r *AttemptRepository) CountDistinctIdentifiersForDevice(ctx context.Context, deviceID string, since time.Time, including string) (int, error) {
	return r.queryCount(ctx, distinctIdentifiersQuery, deviceID, since, including)
}

// DeleteExpired removes at most batchSize records whose expiry has passed
func (r *AttemptRepository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	query := `
		DELETE FROM auth_attempts
		WHERE id IN (SELECT id FROM auth_attempts WHERE expires_at <= $1 LIMIT $2)
	`
	tag, err := r.pool.Exec(ctx, query, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan removes at most batchSize records attempted before cutoff
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	query := `
		DELETE FROM auth_attempts
		WHERE id IN (SELECT id FROM auth_attempts WHERE attempted_at < $1 LIMIT $2)
	`
	tag, err := r.pool.Exec(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attempts before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summary aggregates activity in [from, to)
func (r *AttemptRepository) Summary(ctx context.Context, from, to time.Time) (*models.AttemptSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'failure'),
			COUNT(*) FILTER (WHERE outcome = 'failure' AND channel = 'otp'),
			COUNT(*) FILTER (WHERE temporary_blocked),
			COUNT(DISTINCT identifier),
			COUNT(DISTINCT NULLIF(ip_address, ''))
		FROM auth_attempts
		WHERE attempted_at >= $1 AND attempted_at < $2
	`

	s := &models.AttemptSummary{From: from, To: to}
	err := r.pool.QueryRow(ctx, query, from, to).Scan(
		&s.Total, &s.Successes, &s.Failures, &s.OtpFailures,
		&s.Lockouts, &s.DistinctIdentifiers, &s.DistinctIPs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", database.MapPostgresError(err))
	}
	return s, nil
}

func topOffendersQuery(column string) string {
	return fmt.Sprintf(`
		SELECT %[1]s, COUNT(*), MAX(attempted_at)
		FROM auth_attempts
		WHERE outcome = 'failure' AND %[1]s <> '' AND attempted_at >= $1 AND attempted_at < $2
		GROUP BY %[1]s
		ORDER BY 2 DESC, 3 DESC, 1
		LIMIT $3
	`, column)
}

var (
	topIPsQuery     = topOffendersQuery("ip_address")
	topDevicesQuery = topOffendersQuery("device_id")
)

func (r *AttemptRepository) topOffenders(ctx context.Context, query string, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	rows, err := r.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query offenders: %w", err)
	}
	defer rows.Close()

	out := make([]models.OffenderCount, 0)
	for rows.Next() {
		var oc models.OffenderCount
		if err := rows.Scan(&oc.Key, &oc.Failures, &oc.LastFailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offender: %w", err)
		}
		out = append(out, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offender rows: %w", err)
	}
	return out, nil
}

// TopIPs returns the IPs with the most failures in range
func (r *AttemptRepository) TopIPs(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	return r.topOffenders(ctx, topIPsQuery, from, to, limit)
}

// TopDevices returns the devices with the most failures in range
func (r *AttemptRepository) TopDevices(ctx context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	return r.topOffenders(ctx, topDevicesQuery, from, to, limit)
}

// ListByIP returns the newest attempts from an IP in range
func (r *AttemptRepository) ListByIP(ctx context.Context, ipAddress string, from, to time.Time, limit int) ([]*models.AttemptRecord, error) {
	query := `
		SELECT ` + attemptColumns + ` FROM auth_attempts
		WHERE ip_address = $1 AND attempted_at >= $2 AND attempted_at < $3
		ORDER BY attempted_at DESC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, ipAddress, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by ip: %w", err)
	}
	return scanAttemptRows(rows)
}

// ListByIdentifier returns the newest attempts for an identifier in range
func (r *AttemptRepository) ListByIdentifier(ctx context.Context, identifier string, from, to time.Time, limit int) ([]*models.AttemptRecord, error) {
	query := `
		SELECT ` + attemptColumns + ` FROM auth_attempts
		WHERE identifier = $1 AND attempted_at >= $2 AND attempted_at < $3
		ORDER BY attempted_at DESC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, identifier, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by identifier: %w", err)
	}
	return scanAttemptRows(rows)
}
