package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresvelez/carshare-backend/pkg/enums"
)

// Rental is the aggregate root of the reservation engine. The store assigns
// the numeric id; renter and vehicle references are immutable after creation.
//
// The table carries a generated `period` tstzrange column covering
// [pickup_at, return_at or +infinity) that backs the exclusion constraint;
// application code never touches it directly.
type Rental struct {
	ID             int64               `gorm:"column:id;primaryKey;autoIncrement"`
	RenterID       uuid.UUID           `gorm:"column:renter_id;type:uuid;not null"`
	VehicleID      uuid.UUID           `gorm:"column:vehicle_id;type:uuid;not null"`
	PickupAt       time.Time           `gorm:"column:pickup_at;not null"`
	ReturnAt       *time.Time          `gorm:"column:return_at"`
	ActualPickupAt *time.Time          `gorm:"column:actual_pickup_at"`
	ActualReturnAt *time.Time          `gorm:"column:actual_return_at"`
	Status         enums.RentalStatus  `gorm:"column:status;type:rental_status_enum;not null"`
	EstimatedCost  decimal.Decimal     `gorm:"column:estimated_cost;type:numeric(12,2);not null"`
	FinalCost      decimal.NullDecimal `gorm:"column:final_cost;type:numeric(12,2)"`
	IdempotencyKey string              `gorm:"column:idempotency_key;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Rental) TableName() string { return "rentals" }
