package vehicles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/outbox"
	"github.com/andresvelez/carshare-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages the local vehicle directory.
type Service interface {
	List(ctx context.Context, input ListInput) (*models.Vehicle, error)
	Retire(ctx context.Context, vehicleID, actorID uuid.UUID) (*models.Vehicle, error)
	Get(ctx context.Context, vehicleID uuid.UUID) (*models.Vehicle, error)
}

// ListInput carries the fields needed to add a vehicle to the fleet.
type ListInput struct {
	OwnerID    uuid.UUID
	HourlyRate decimal.Decimal
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds a vehicle service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vehicles repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*models.Vehicle, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if input.HourlyRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hourly rate must not be negative")
	}

	var created *models.Vehicle
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vehicle, err := repo.Create(ctx, &models.Vehicle{
			OwnerID:    input.OwnerID,
			HourlyRate: input.HourlyRate,
			Active:     true,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vehicle")
		}
		created = vehicle
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVehicleListed,
			AggregateType: enums.AggregateVehicle,
			AggregateID:   vehicle.ID.String(),
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.OwnerID, Role: "owner"},
			Data: payloads.VehicleListedEvent{
				VehicleID:  vehicle.ID,
				OwnerID:    vehicle.OwnerID,
				HourlyRate: vehicle.HourlyRate,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Retire(ctx context.Context, vehicleID, actorID uuid.UUID) (*models.Vehicle, error) {
	if vehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing")
	}

	var retired *models.Vehicle
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vehicle, err := repo.FindByID(ctx, vehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
		}
		if vehicle.OwnerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vehicle does not belong to actor")
		}
		if !vehicle.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vehicle already retired")
		}
		if err := repo.SetActive(ctx, vehicleID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire vehicle")
		}
		vehicle.Active = false
		retired = vehicle
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVehicleRetired,
			AggregateType: enums.AggregateVehicle,
			AggregateID:   vehicle.ID.String(),
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: "owner"},
			Data: payloads.VehicleRetiredEvent{
				VehicleID: vehicle.ID,
				OwnerID:   vehicle.OwnerID,
				RetiredAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return retired, nil
}

func (s *service) Get(ctx context.Context, vehicleID uuid.UUID) (*models.Vehicle, error) {
	if vehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	vehicle, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
	}
	return vehicle, nil
}
