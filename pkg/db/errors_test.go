package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolationMatchesConstraintName(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_rentals_renter_idempotency_key"}
	wrapped := fmt.Errorf("insert rental: %w", pgErr)

	if !IsUniqueViolation(wrapped, "ux_rentals_renter_idempotency_key") {
		t.Fatal("expected unique violation with matching constraint")
	}
	if IsUniqueViolation(wrapped, "some_other_constraint") {
		t.Fatal("constraint name mismatch should not match")
	}
	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("empty constraint should match any unique violation")
	}
}

func TestIsExclusionViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "ex_rentals_vehicle_period"}
	wrapped := fmt.Errorf("insert rental: %w", pgErr)

	if !IsExclusionViolation(wrapped, "ex_rentals_vehicle_period") {
		t.Fatal("expected exclusion violation with matching constraint")
	}
	if IsExclusionViolation(wrapped, "ux_rentals_renter_idempotency_key") {
		t.Fatal("constraint name mismatch should not match")
	}
	if IsExclusionViolation(errors.New("context deadline exceeded"), "") {
		t.Fatal("generic errors are not exclusion violations")
	}
}

func TestIsUniqueViolationSQLiteFallback(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: rentals.renter_id, rentals.idempotency_key")
	if !IsUniqueViolation(err, "") {
		t.Fatal("expected sqlite unique failure to classify as unique violation")
	}
}
