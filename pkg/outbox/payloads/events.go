package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresvelez/carshare-backend/pkg/enums"
)

// RentalConfirmedEvent signals that a reservation was accepted for a vehicle
// and its window now blocks overlapping bookings.
type RentalConfirmedEvent struct {
	RentalID      int64              `json:"rental_id"`
	RenterID      uuid.UUID          `json:"renter_id"`
	VehicleID     uuid.UUID          `json:"vehicle_id"`
	OwnerID       uuid.UUID          `json:"owner_id"`
	PickupAt      time.Time          `json:"pickup_at"`
	ReturnAt      *time.Time         `json:"return_at,omitempty"`
	EstimatedCost decimal.Decimal    `json:"estimated_cost"`
	Status        enums.RentalStatus `json:"status"`
}

// RentalPickedUpEvent records that the renter collected the vehicle.
type RentalPickedUpEvent struct {
	RentalID       int64     `json:"rental_id"`
	RenterID       uuid.UUID `json:"renter_id"`
	VehicleID      uuid.UUID `json:"vehicle_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	ActualPickupAt time.Time `json:"actual_pickup_at"`
}

// RentalReturnedEvent records that the renter dropped the vehicle off.
type RentalReturnedEvent struct {
	RentalID       int64     `json:"rental_id"`
	RenterID       uuid.UUID `json:"renter_id"`
	VehicleID      uuid.UUID `json:"vehicle_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	ActualReturnAt time.Time `json:"actual_return_at"`
}

// RentalReturnApprovedEvent closes the rental after the owner inspects the
// vehicle, carrying the settled cost.
type RentalReturnApprovedEvent struct {
	RentalID  int64           `json:"rental_id"`
	RenterID  uuid.UUID       `json:"renter_id"`
	VehicleID uuid.UUID       `json:"vehicle_id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	FinalCost decimal.Decimal `json:"final_cost"`
}

// RentalCancelledEvent is emitted when a pending or confirmed rental is
// cancelled and its window stops blocking.
type RentalCancelledEvent struct {
	RentalID    int64     `json:"rental_id"`
	RenterID    uuid.UUID `json:"renter_id"`
	VehicleID   uuid.UUID `json:"vehicle_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// VehicleListedEvent announces a vehicle joining the fleet.
type VehicleListedEvent struct {
	VehicleID  uuid.UUID       `json:"vehicle_id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// VehicleRetiredEvent announces a vehicle leaving the fleet.
type VehicleRetiredEvent struct {
	VehicleID uuid.UUID `json:"vehicle_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	RetiredAt time.Time `json:"retired_at"`
}
