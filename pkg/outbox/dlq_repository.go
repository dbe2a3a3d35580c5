package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
)

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx copies a dead event into the DLQ table inside the caller's
// transaction, paired with the MarkTerminalTx update on the source row.
func (r *DLQRepository) InsertTx(tx *gorm.DB, source *models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	message := cause.Error()
	row := &models.OutboxDLQ{
		EventID:       source.ID,
		EventType:     source.EventType,
		AggregateType: source.AggregateType,
		AggregateID:   source.AggregateID,
		Payload:       source.Payload,
		Headers:       source.Headers,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  source.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	return tx.Create(row).Error
}

// FetchRequeued returns DLQ rows an operator flagged for another delivery
// attempt.
func (r *DLQRepository) FetchRequeued(limit int) ([]models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	err := r.db.Where("requeue = ?", true).
		Order("failed_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteTx removes a DLQ row once its event has been requeued.
func (r *DLQRepository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Delete(&models.OutboxDLQ{}, "id = ?", id).Error
}
