package enums

import "fmt"

// RentalStatus maps to the rental_status enum in Postgres.
type RentalStatus string

const (
	RentalStatusPending        RentalStatus = "PENDING"
	RentalStatusConfirmed      RentalStatus = "CONFIRMED"
	RentalStatusPickedUp       RentalStatus = "PICKED_UP"
	RentalStatusReturned       RentalStatus = "RETURNED"
	RentalStatusReturnApproved RentalStatus = "RETURN_APPROVED"
	RentalStatusCancelled      RentalStatus = "CANCELLED"
)

var validRentalStatuses = []RentalStatus{
	RentalStatusPending,
	RentalStatusConfirmed,
	RentalStatusPickedUp,
	RentalStatusReturned,
	RentalStatusReturnApproved,
	RentalStatusCancelled,
}

// IsValid reports whether the value matches the canonical rental_status enum.
func (s RentalStatus) IsValid() bool {
	for _, candidate := range validRentalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Blocking reports whether a rental in this status occupies the vehicle for
// the overlap check. Only CONFIRMED and PICKED_UP rentals conflict with a
// new reservation.
func (s RentalStatus) Blocking() bool {
	return s == RentalStatusConfirmed || s == RentalStatusPickedUp
}

// BlockingRentalStatuses lists the statuses the overlap check considers.
func BlockingRentalStatuses() []RentalStatus {
	return []RentalStatus{RentalStatusConfirmed, RentalStatusPickedUp}
}

// Terminal reports whether no further transitions are allowed.
func (s RentalStatus) Terminal() bool {
	return s == RentalStatusReturnApproved || s == RentalStatusCancelled
}

// ParseRentalStatus converts raw input into RentalStatus.
func ParseRentalStatus(value string) (RentalStatus, error) {
	for _, candidate := range validRentalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rental status %q", value)
}
