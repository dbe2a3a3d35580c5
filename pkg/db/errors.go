package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation    = "23505"
	sqlStateExclusionViolation = "23P01"
)

// constraintName extracts the violated constraint name and SQLSTATE from a
// Postgres driver error. Returns empty strings for non-Postgres errors.
func constraintName(err error) (name, code string) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.ConstraintName, pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint, string(pqErr.Code)
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a Postgres unique violation. When
// constraint is non-empty the declared constraint name must match as well, so
// callers can distinguish which rule actually fired.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	name, code := constraintName(err)
	if code == sqlStateUniqueViolation {
		return constraint == "" || name == constraint
	}
	// Fallback for drivers that flatten the error into text (sqlite in tests).
	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsExclusionViolation reports whether err is a Postgres exclusion-constraint
// violation, optionally matching the declared constraint name.
func IsExclusionViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	name, code := constraintName(err)
	if code == sqlStateExclusionViolation {
		return constraint == "" || name == constraint
	}
	if constraint != "" && strings.Contains(err.Error(), constraint) {
		return true
	}
	return false
}
