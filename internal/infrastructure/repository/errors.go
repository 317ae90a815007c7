package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres foreign key violation error code.
const pgForeignKeyViolation = "23503"

// isForeignKeyViolation reports whether the insert failed because a
// referenced assessment row is missing.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
