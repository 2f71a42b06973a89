package repositories

import (
	"context"
	"errors"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyRepository reads policy parameters from the security_policies table.
// A key missing from the requested scope falls back to the "global" row.
type PolicyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository creates a new PolicyRepository
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{pool: db.Pool}
}

// Lookup implements policy.Source
func (r *PolicyRepository) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	query := `
		SELECT value FROM security_policies
		WHERE key = $2 AND scope IN ($1, 'global')
		ORDER BY (scope = $1) DESC
		LIMIT 1
	`

	var value string
	err := r.pool.QueryRow(ctx, query, scope, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, database.MapPostgresError(err)
	}
	return value, true, nil
}

// Upsert sets one parameter for a scope
func (r *PolicyRepository) Upsert(ctx context.Context, scope, key, value string) error {
	query := `
		INSERT INTO security_policies (scope, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, scope, key, value)
	return database.MapPostgresError(err)
}
