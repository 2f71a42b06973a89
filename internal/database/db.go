package database

import (
	"errors"
	"fmt"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	notNullViolation    = "23502"
	checkViolation      = "23514"
)

// MapPostgresError translates driver errors into model sentinels. Rejected
// rows keep the constraint name, e.g. auth_attempts_success_not_blocked.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
	case foreignKeyViolation, notNullViolation, checkViolation:
		if pgErr.ConstraintName == "" {
			return fmt.Errorf("%w: column %s", models.ErrBadRequest, pgErr.ColumnName)
		}
		return fmt.Errorf("%w: violates %s", models.ErrBadRequest, pgErr.ConstraintName)
	}
	return err
}
