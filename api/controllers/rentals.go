package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresvelez/carshare-backend/api/middleware"
	"github.com/andresvelez/carshare-backend/api/responses"
	"github.com/andresvelez/carshare-backend/api/validators"
	"github.com/andresvelez/carshare-backend/internal/rentals"
	"github.com/andresvelez/carshare-backend/pkg/db/models"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

type rentalCreateRequest struct {
	VehicleID      uuid.UUID  `json:"vehicle_id" validate:"required"`
	PickupAt       time.Time  `json:"pickup_at" validate:"required"`
	ReturnAt       *time.Time `json:"return_at"`
	IdempotencyKey string     `json:"idempotency_key" validate:"required,max=128"`
}

type rentalCancelRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

type rentalApproveReturnRequest struct {
	AdditionalCharges decimal.Decimal `json:"additional_charges"`
}

type rentalResponse struct {
	ID             int64            `json:"id"`
	RenterID       uuid.UUID        `json:"renter_id"`
	VehicleID      uuid.UUID        `json:"vehicle_id"`
	PickupAt       time.Time        `json:"pickup_at"`
	ReturnAt       *time.Time       `json:"return_at,omitempty"`
	ActualPickupAt *time.Time       `json:"actual_pickup_at,omitempty"`
	ActualReturnAt *time.Time       `json:"actual_return_at,omitempty"`
	Status         string           `json:"status"`
	EstimatedCost  decimal.Decimal  `json:"estimated_cost"`
	FinalCost      *decimal.Decimal `json:"final_cost,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func newRentalResponse(rental *models.Rental) rentalResponse {
	resp := rentalResponse{
		ID:             rental.ID,
		RenterID:       rental.RenterID,
		VehicleID:      rental.VehicleID,
		PickupAt:       rental.PickupAt,
		ReturnAt:       rental.ReturnAt,
		ActualPickupAt: rental.ActualPickupAt,
		ActualReturnAt: rental.ActualReturnAt,
		Status:         string(rental.Status),
		EstimatedCost:  rental.EstimatedCost,
		CreatedAt:      rental.CreatedAt,
	}
	if rental.FinalCost.Valid {
		final := rental.FinalCost.Decimal
		resp.FinalCost = &final
	}
	return resp
}

// RentalCreate books a vehicle for the calling renter.
func RentalCreate(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := middleware.ActorIDFromContext(r.Context())

		var req rentalCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rental, err := svc.Create(r.Context(), rentals.CreateInput{
			RenterID:       actorID,
			VehicleID:      req.VehicleID,
			PickupAt:       req.PickupAt,
			ReturnAt:       req.ReturnAt,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRentalResponse(rental))
	}
}

// RentalPickup records the renter taking the vehicle.
func RentalPickup(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(logg, svc.Pickup)
}

// RentalReturn records the renter bringing the vehicle back.
func RentalReturn(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(logg, svc.Return)
}

// RentalApproveReturn lets the vehicle owner close out the rental, settling
// the final cost as the estimate plus any asserted charges.
func RentalApproveReturn(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rentalID, err := rentalIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Charges are optional, as is the body carrying them.
		var req rentalApproveReturnRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		rental, err := svc.ApproveReturn(r.Context(), rentals.ApproveReturnInput{
			RentalID:          rentalID,
			ActorID:           middleware.ActorIDFromContext(r.Context()),
			AdditionalCharges: req.AdditionalCharges,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRentalResponse(rental))
	}
}

// RentalCancel withdraws a booking that has not been picked up.
func RentalCancel(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rentalID, err := rentalIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The cancellation reason is optional, as is the body carrying it.
		var req rentalCancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		rental, err := svc.Cancel(r.Context(), rentals.CancelInput{
			RentalID: rentalID,
			ActorID:  middleware.ActorIDFromContext(r.Context()),
			Reason:   req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRentalResponse(rental))
	}
}

// RentalDetail returns one rental visible to the caller.
func RentalDetail(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return rentalTransition(logg, svc.Get)
}

// RentalList returns the caller's rentals, newest first.
func RentalList(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListMine(r.Context(), middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]rentalResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newRentalResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func rentalTransition(logg *logger.Logger, op func(context.Context, int64, uuid.UUID) (*models.Rental, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rentalID, err := rentalIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rental, err := op(r.Context(), rentalID, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRentalResponse(rental))
	}
}

func rentalIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "rentalId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "rental id must be a positive integer")
	}
	return id, nil
}
