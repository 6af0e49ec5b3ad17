package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStaleVersion signals that a conditional update matched zero rows because
// the row's version stamp changed since it was read. Callers retry the whole
// operation with fresh reads; the retry coordinator treats it as the only
// retryable failure.
var ErrStaleVersion = errors.New("db: stale version")

// IsStaleVersion reports whether err is (or wraps) a version conflict.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}

// IsUniqueViolation reports whether err is a Postgres unique violation,
// optionally scoped to a single constraint. Falls back to message sniffing
// for drivers that do not surface structured errors.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}
