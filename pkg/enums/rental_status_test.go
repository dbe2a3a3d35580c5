package enums

import "testing"

func TestRentalStatusBlocking(t *testing.T) {
	blocking := map[RentalStatus]bool{
		RentalStatusPending:        false,
		RentalStatusConfirmed:      true,
		RentalStatusPickedUp:       true,
		RentalStatusReturned:       false,
		RentalStatusReturnApproved: false,
		RentalStatusCancelled:      false,
	}
	for status, want := range blocking {
		if got := status.Blocking(); got != want {
			t.Fatalf("%s: blocking=%v, want %v", status, got, want)
		}
	}
}

func TestParseRentalStatus(t *testing.T) {
	status, err := ParseRentalStatus("PICKED_UP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != RentalStatusPickedUp {
		t.Fatalf("unexpected status: %s", status)
	}

	if _, err := ParseRentalStatus("DRIVING"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
