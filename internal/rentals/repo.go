package rentals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
)

// Constraint names declared in the rentals migration. The retry coordinator
// matches driver errors against these to decide what is safe to retry.
const (
	ConstraintVehiclePeriod     = "ex_rentals_vehicle_period"
	ConstraintRenterIdempotency = "ux_rentals_renter_idempotency_key"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a rentals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the rental. Constraint violations come back as raw driver
// errors so callers can inspect the declared constraint name.
func (r *repository) Create(ctx context.Context, rental *models.Rental) (*models.Rental, error) {
	if err := r.db.WithContext(ctx).Create(rental).Error; err != nil {
		return nil, err
	}
	return rental, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, renterID uuid.UUID, key string) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Where("renter_id = ? AND idempotency_key = ?", renterID, key).
		First(&rental).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

// HasBlockingOverlap runs the advisory pre-check against blocking rentals on
// the vehicle. Intervals are half-open [pickup, return); a nil return bound
// extends to infinity. The exclusion constraint remains the arbiter under
// concurrency; this check only produces friendlier rejections on the common
// path.
func (r *repository) HasBlockingOverlap(ctx context.Context, vehicleID uuid.UUID, pickupAt time.Time, returnAt *time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("vehicle_id = ?", vehicleID).
		Where("status IN ?", enums.BlockingRentalStatuses()).
		Where("(return_at IS NULL OR return_at > ?)", pickupAt)
	if returnAt != nil {
		query = query.Where("pickup_at < ?", *returnAt)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateStatusGuarded applies updates only while the row is still in one of
// the expected states, reporting how many rows matched. A zero count means
// the rental moved on concurrently.
func (r *repository) UpdateStatusGuarded(ctx context.Context, id int64, from []enums.RentalStatus, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) ListByRenter(ctx context.Context, renterID uuid.UUID) ([]models.Rental, error) {
	var rows []models.Rental
	err := r.db.WithContext(ctx).
		Where("renter_id = ?", renterID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
