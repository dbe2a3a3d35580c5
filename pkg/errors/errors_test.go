package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	meta := MetadataFor(CodeConflict)
	if meta.HTTPStatus != http.StatusConflict {
		t.Fatalf("conflict should map to 409, got %d", meta.HTTPStatus)
	}
	if !meta.Retryable {
		t.Fatalf("conflict should be reported retryable to the caller")
	}

	meta = MetadataFor(CodeStateConflict)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("state conflict should map to 422, got %d", meta.HTTPStatus)
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown code should map to 500, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCauseChain(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(CodeDependency, fmt.Errorf("mid: %w", cause), "store write")

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to survive wrapping")
	}
	if As(err).Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", As(err).Code())
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "not the renter"))
	if !IsCode(err, CodeForbidden) {
		t.Fatalf("expected forbidden code in chain")
	}
	if IsCode(err, CodeConflict) {
		t.Fatalf("did not expect conflict code")
	}
}

func TestDumpExtractsPostgresConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23P01",
		ConstraintName: "ex_rentals_vehicle_period",
		TableName:      "rentals",
	}
	dump := Dump(fmt.Errorf("create rental: %w", pgErr))

	if dump.PGCode != "23P01" {
		t.Fatalf("unexpected pg code: %s", dump.PGCode)
	}
	if dump.PGConstraint != "ex_rentals_vehicle_period" {
		t.Fatalf("unexpected constraint: %s", dump.PGConstraint)
	}
}
