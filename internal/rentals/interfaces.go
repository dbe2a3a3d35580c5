package rentals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
)

// Repository defines persistence operations for rental rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rental *models.Rental) (*models.Rental, error)
	FindByID(ctx context.Context, id int64) (*models.Rental, error)
	FindByIdempotencyKey(ctx context.Context, renterID uuid.UUID, key string) (*models.Rental, error)
	HasBlockingOverlap(ctx context.Context, vehicleID uuid.UUID, pickupAt time.Time, returnAt *time.Time) (bool, error)
	UpdateStatusGuarded(ctx context.Context, id int64, from []enums.RentalStatus, updates map[string]any) (int64, error)
	ListByRenter(ctx context.Context, renterID uuid.UUID) ([]models.Rental, error)
}
