package rentals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput carries everything needed to book a vehicle. ReturnAt may be
// nil for an open-ended rental; the window then blocks until the vehicle
// comes back.
type CreateInput struct {
	RenterID       uuid.UUID
	VehicleID      uuid.UUID
	PickupAt       time.Time
	ReturnAt       *time.Time
	IdempotencyKey string
}

// ApproveReturnInput closes out a returned rental. AdditionalCharges covers
// anything the owner asserts on inspection (fuel, damage); zero when omitted.
type ApproveReturnInput struct {
	RentalID          int64
	ActorID           uuid.UUID
	AdditionalCharges decimal.Decimal
}

// CancelInput identifies the rental being cancelled and why.
type CancelInput struct {
	RentalID int64
	ActorID  uuid.UUID
	Reason   string
}
