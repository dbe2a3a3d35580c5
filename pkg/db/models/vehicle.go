package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vehicle holds the slice of the external catalog the reservation engine
// needs locally: the owner reference for return approval and the hourly rate
// backing cost estimates.
type Vehicle struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID    uuid.UUID       `gorm:"column:owner_id;type:uuid;not null"`
	HourlyRate decimal.Decimal `gorm:"column:hourly_rate;type:numeric(12,2);not null"`
	Active     bool            `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Vehicle) TableName() string { return "vehicles" }

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
