package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

const dlqReplayBatchSize = 100

type DLQReplayJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    dlqReplayOutboxRepo
	DLQ       dlqReplayRepo
	BatchSize int
}

type dlqReplayOutboxRepo interface {
	Requeue(tx *gorm.DB, id uuid.UUID) error
}

type dlqReplayRepo interface {
	FetchRequeued(limit int) ([]models.OutboxDLQ, error)
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
}

// NewDLQReplayJob returns dead-lettered events flagged by an operator to the
// publish queue. Each row is requeued and removed from the DLQ in one
// transaction; a bad row does not stop the rest of the batch.
func NewDLQReplayJob(params DLQReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = dlqReplayBatchSize
	}
	return &dlqReplayJob{
		logg:   params.Logger,
		db:     params.DB,
		outbox: params.Outbox,
		dlq:    params.DLQ,
		batch:  batch,
	}, nil
}

type dlqReplayJob struct {
	logg   *logger.Logger
	db     txRunner
	outbox dlqReplayOutboxRepo
	dlq    dlqReplayRepo
	batch  int
}

func (j *dlqReplayJob) Name() string { return "dlq-replay" }

func (j *dlqReplayJob) Run(ctx context.Context) error {
	rows, err := j.dlq.FetchRequeued(j.batch)
	if err != nil {
		return fmt.Errorf("fetch requeued dlq rows: %w", err)
	}
	if len(rows) == 0 {
		j.logg.Info(ctx, "no dlq rows flagged for replay")
		return nil
	}

	var errs error
	replayed := 0
	for _, row := range rows {
		replayErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			if err := j.outbox.Requeue(tx, row.EventID); err != nil {
				return fmt.Errorf("requeue event %s: %w", row.EventID, err)
			}
			if err := j.dlq.DeleteTx(tx, row.ID); err != nil {
				return fmt.Errorf("delete dlq row %s: %w", row.ID, err)
			}
			return nil
		})
		if replayErr != nil {
			errs = multierr.Append(errs, replayErr)
			continue
		}
		replayed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rows_flagged":  len(rows),
		"rows_replayed": replayed,
	})
	j.logg.Info(logCtx, "dlq replay complete")
	return errs
}
