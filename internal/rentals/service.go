package rentals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/internal/vehicles"
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

type vehicleDirectory interface {
	WithTx(tx *gorm.DB) vehicles.Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
}

// Service drives the rental lifecycle. Every state-mutating operation is a
// single transaction that pairs the row mutation with its outbox event.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Rental, error)
	Pickup(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error)
	Return(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error)
	ApproveReturn(ctx context.Context, input ApproveReturnInput) (*models.Rental, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Rental, error)
	Get(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error)
	ListMine(ctx context.Context, renterID uuid.UUID) ([]models.Rental, error)
}

type service struct {
	repo      Repository
	fleet     vehicleDirectory
	estimator vehicles.Estimator
	tx        txRunner
	outbox    outboxPublisher
	retry     *Coordinator
}

// NewService builds a rental service with the required dependencies.
func NewService(repo Repository, fleet vehicleDirectory, estimator vehicles.Estimator, tx txRunner, outboxSvc outboxPublisher, coordinator *Coordinator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rentals repository required")
	}
	if fleet == nil {
		return nil, fmt.Errorf("vehicle directory required")
	}
	if estimator == nil {
		return nil, fmt.Errorf("cost estimator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("retry coordinator required")
	}
	return &service{
		repo:      repo,
		fleet:     fleet,
		estimator: estimator,
		tx:        tx,
		outbox:    outboxSvc,
		retry:     coordinator,
	}, nil
}

// Create books a vehicle for [PickupAt, ReturnAt). Duplicate submissions
// with the same idempotency key return the original rental unchanged. Lost
// booking races are replayed by the coordinator; once attempts run out the
// conflict surfaces to the caller.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Rental, error) {
	if input.RenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "renter id required")
	}
	if input.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if input.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if input.PickupAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup time required")
	}
	if input.ReturnAt != nil && !input.PickupAt.Before(*input.ReturnAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup must be before return")
	}

	var result *models.Rental
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			existing, err := repo.FindByIdempotencyKey(ctx, input.RenterID, input.IdempotencyKey)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
			}
			if existing != nil {
				result = existing
				return nil
			}

			vehicle, err := s.fleet.WithTx(tx).FindByID(ctx, input.VehicleID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
			}
			if !vehicle.Active {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "vehicle is retired")
			}

			overlaps, err := repo.HasBlockingOverlap(ctx, input.VehicleID, input.PickupAt, input.ReturnAt)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "overlap check")
			}
			if overlaps {
				return pkgerrors.New(pkgerrors.CodeConflict, "vehicle already booked for the requested period")
			}

			rental := &models.Rental{
				RenterID:       input.RenterID,
				VehicleID:      input.VehicleID,
				PickupAt:       input.PickupAt,
				ReturnAt:       input.ReturnAt,
				Status:         enums.RentalStatusConfirmed,
				EstimatedCost:  s.estimator.Estimate(vehicle.HourlyRate, input.PickupAt, input.ReturnAt),
				IdempotencyKey: input.IdempotencyKey,
			}
			// The insert is left unwrapped: the coordinator inspects the
			// driver error's constraint name on a lost race.
			if _, err := repo.Create(ctx, rental); err != nil {
				return err
			}

			result = rental
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRentalConfirmed,
				AggregateType: enums.AggregateRental,
				AggregateID:   fmt.Sprintf("%d", rental.ID),
				Version:       1,
				Actor:         &outbox.ActorRef{UserID: input.RenterID, Role: "renter"},
				Data: payloads.RentalConfirmedEvent{
					RentalID:      rental.ID,
					RenterID:      rental.RenterID,
					VehicleID:     rental.VehicleID,
					OwnerID:       vehicle.OwnerID,
					PickupAt:      rental.PickupAt,
					ReturnAt:      rental.ReturnAt,
					EstimatedCost: rental.EstimatedCost,
					Status:        rental.Status,
				},
			})
		})
	})
	if err != nil {
		if isRetryableConstraint(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "vehicle already booked for the requested period")
		}
		return nil, err
	}
	return result, nil
}

func (s *service) Pickup(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error) {
	now := time.Now().UTC()
	return s.transition(ctx, transitionRequest{
		rentalID:  rentalID,
		actorID:   actorID,
		actorRole: "renter",
		from:      []enums.RentalStatus{enums.RentalStatusConfirmed},
		to:        enums.RentalStatusPickedUp,
		authorize: renterOnly,
		updates:   map[string]any{"actual_pickup_at": now},
		event: func(rental *models.Rental, vehicle *models.Vehicle) (enums.OutboxEventType, interface{}) {
			return enums.EventRentalPickedUp, payloads.RentalPickedUpEvent{
				RentalID:       rental.ID,
				RenterID:       rental.RenterID,
				VehicleID:      rental.VehicleID,
				OwnerID:        vehicle.OwnerID,
				ActualPickupAt: now,
			}
		},
	})
}

func (s *service) Return(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error) {
	now := time.Now().UTC()
	return s.transition(ctx, transitionRequest{
		rentalID:  rentalID,
		actorID:   actorID,
		actorRole: "renter",
		from:      []enums.RentalStatus{enums.RentalStatusPickedUp},
		to:        enums.RentalStatusReturned,
		authorize: renterOnly,
		updates:   map[string]any{"actual_return_at": now},
		event: func(rental *models.Rental, vehicle *models.Vehicle) (enums.OutboxEventType, interface{}) {
			return enums.EventRentalReturned, payloads.RentalReturnedEvent{
				RentalID:       rental.ID,
				RenterID:       rental.RenterID,
				VehicleID:      rental.VehicleID,
				OwnerID:        vehicle.OwnerID,
				ActualReturnAt: now,
			}
		},
	})
}

// ApproveReturn closes the rental after the owner inspects the vehicle. The
// final cost is the committed estimate plus whatever charges the owner
// asserts; the estimate itself is never recomputed at settlement.
func (s *service) ApproveReturn(ctx context.Context, input ApproveReturnInput) (*models.Rental, error) {
	if input.AdditionalCharges.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "additional charges must not be negative")
	}
	var finalCost decimal.Decimal
	return s.transition(ctx, transitionRequest{
		rentalID:  input.RentalID,
		actorID:   input.ActorID,
		actorRole: "owner",
		from:      []enums.RentalStatus{enums.RentalStatusReturned},
		to:        enums.RentalStatusReturnApproved,
		authorize: ownerOnly,
		prepare: func(rental *models.Rental, vehicle *models.Vehicle) map[string]any {
			finalCost = rental.EstimatedCost.Add(input.AdditionalCharges)
			return map[string]any{"final_cost": finalCost}
		},
		event: func(rental *models.Rental, vehicle *models.Vehicle) (enums.OutboxEventType, interface{}) {
			return enums.EventRentalReturnApproved, payloads.RentalReturnApprovedEvent{
				RentalID:  rental.ID,
				RenterID:  rental.RenterID,
				VehicleID: rental.VehicleID,
				OwnerID:   vehicle.OwnerID,
				FinalCost: finalCost,
			}
		},
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Rental, error) {
	now := time.Now().UTC()
	return s.transition(ctx, transitionRequest{
		rentalID:  input.RentalID,
		actorID:   input.ActorID,
		actorRole: "renter",
		from:      []enums.RentalStatus{enums.RentalStatusPending, enums.RentalStatusConfirmed},
		to:        enums.RentalStatusCancelled,
		authorize: renterOnly,
		event: func(rental *models.Rental, vehicle *models.Vehicle) (enums.OutboxEventType, interface{}) {
			return enums.EventRentalCancelled, payloads.RentalCancelledEvent{
				RentalID:    rental.ID,
				RenterID:    rental.RenterID,
				VehicleID:   rental.VehicleID,
				OwnerID:     vehicle.OwnerID,
				CancelledAt: now,
				Reason:      input.Reason,
			}
		},
	})
}

func (s *service) Get(ctx context.Context, rentalID int64, actorID uuid.UUID) (*models.Rental, error) {
	if rentalID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing")
	}
	rental, err := s.repo.FindByID(ctx, rentalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rental")
	}
	if rental.RenterID == actorID {
		return rental, nil
	}
	vehicle, err := s.fleet.FindByID(ctx, rental.VehicleID)
	if err == nil && vehicle.OwnerID == actorID {
		return rental, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "rental does not belong to actor")
}

func (s *service) ListMine(ctx context.Context, renterID uuid.UUID) ([]models.Rental, error) {
	if renterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing")
	}
	return s.repo.ListByRenter(ctx, renterID)
}

// transitionRequest describes one edge of the lifecycle graph.
type transitionRequest struct {
	rentalID  int64
	actorID   uuid.UUID
	actorRole string
	from      []enums.RentalStatus
	to        enums.RentalStatus
	authorize func(rental *models.Rental, vehicle *models.Vehicle, actorID uuid.UUID) error
	prepare   func(rental *models.Rental, vehicle *models.Vehicle) map[string]any
	updates   map[string]any
	event     func(rental *models.Rental, vehicle *models.Vehicle) (enums.OutboxEventType, interface{})
}

// transition is the single atomic read-modify-write every lifecycle edge
// goes through. The status guard on the update keeps concurrent transitions
// from double-applying.
func (s *service) transition(ctx context.Context, req transitionRequest) (*models.Rental, error) {
	if req.rentalID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental id required")
	}
	if req.actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing")
	}

	var result *models.Rental
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rental, err := repo.FindByID(ctx, req.rentalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "rental not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rental")
		}

		vehicle, err := s.fleet.WithTx(tx).FindByID(ctx, rental.VehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
		}

		if err := req.authorize(rental, vehicle, req.actorID); err != nil {
			return err
		}
		if !statusIn(rental.Status, req.from) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move rental from %s to %s", rental.Status, req.to))
		}

		updates := map[string]any{"status": req.to}
		for k, v := range req.updates {
			updates[k] = v
		}
		if req.prepare != nil {
			for k, v := range req.prepare(rental, vehicle) {
				updates[k] = v
			}
		}

		affected, err := repo.UpdateStatusGuarded(ctx, rental.ID, req.from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rental")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rental changed state concurrently")
		}

		updated, err := repo.FindByID(ctx, rental.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload rental")
		}
		result = updated

		eventType, data := req.event(updated, vehicle)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateRental,
			AggregateID:   fmt.Sprintf("%d", updated.ID),
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: req.actorID, Role: req.actorRole},
			Data:          data,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func renterOnly(rental *models.Rental, _ *models.Vehicle, actorID uuid.UUID) error {
	if rental.RenterID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "rental does not belong to actor")
	}
	return nil
}

func ownerOnly(_ *models.Rental, vehicle *models.Vehicle, actorID uuid.UUID) error {
	if vehicle.OwnerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vehicle does not belong to actor")
	}
	return nil
}

func statusIn(status enums.RentalStatus, set []enums.RentalStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
