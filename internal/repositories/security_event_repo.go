package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository handles security event data access
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

// Create persists one security event
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, action, success, severity, actor_id, context, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Action, event.Success, event.Severity,
		event.ActorID, event.Context, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListSince returns events of one action kind, newest first
func (r *SecurityEventRepository) ListSince(ctx context.Context, action models.ActionKind, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, action, success, severity, actor_id, context, occurred_at
		FROM security_events
		WHERE action = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, action, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.SecurityEvent, error) {
		var e models.SecurityEvent
		var severity string
		if err := row.Scan(&e.ID, &e.Action, &e.Success, &severity, &e.ActorID, &e.Context, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Severity = models.ParseSeverity(severity)
		return &e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan security events: %w", database.MapPostgresError(err))
	}
	return events, nil
}
