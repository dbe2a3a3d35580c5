package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit. Data is marshalled into the
// payload envelope; AggregateID becomes the broker ordering key downstream.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo   *Repository
	logg   *logger.Logger
	source string
}

func NewService(repo *Repository, logg *logger.Logger, source string) *Service {
	return &Service{repo: repo, logg: logg, source: source}
}

// Emit stages an event row inside the caller's transaction. Missing event
// type, aggregate identity, or payload is a caller bug and rejected outright
// rather than silently queued.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.EventType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox event type is required")
	}
	if !event.AggregateType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox aggregate type is required")
	}
	if event.AggregateID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox aggregate id is required")
	}
	if event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "outbox event payload is required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal outbox payload")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal outbox envelope")
	}
	headers := models.JSONMap{
		HeaderEventType: string(event.EventType),
		HeaderSource:    s.source,
		HeaderTimestamp: event.OccurredAt.Format(time.RFC3339),
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		headers[HeaderCorrelationID] = reqID
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
		Headers:       headers,
	}
	if err := s.repo.Insert(tx, &row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert outbox event")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}
