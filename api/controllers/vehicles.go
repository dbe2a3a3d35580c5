package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresvelez/carshare-backend/api/middleware"
	"github.com/andresvelez/carshare-backend/api/responses"
	"github.com/andresvelez/carshare-backend/api/validators"
	"github.com/andresvelez/carshare-backend/internal/vehicles"
	"github.com/andresvelez/carshare-backend/pkg/db/models"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

type vehicleListRequest struct {
	HourlyRate decimal.Decimal `json:"hourly_rate" validate:"required"`
}

type vehicleQuoteRequest struct {
	PickupAt time.Time  `json:"pickup_at" validate:"required"`
	ReturnAt *time.Time `json:"return_at"`
}

type vehicleResponse struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

func newVehicleResponse(vehicle *models.Vehicle) vehicleResponse {
	return vehicleResponse{
		ID:         vehicle.ID,
		OwnerID:    vehicle.OwnerID,
		HourlyRate: vehicle.HourlyRate,
		Active:     vehicle.Active,
		CreatedAt:  vehicle.CreatedAt,
	}
}

// VehicleList adds a vehicle to the caller's fleet.
func VehicleList(svc vehicles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vehicleListRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vehicle, err := svc.List(r.Context(), vehicles.ListInput{
			OwnerID:    middleware.ActorIDFromContext(r.Context()),
			HourlyRate: req.HourlyRate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newVehicleResponse(vehicle))
	}
}

// VehicleRetire removes a vehicle from booking availability.
func VehicleRetire(svc vehicles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID, err := vehicleIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vehicle, err := svc.Retire(r.Context(), vehicleID, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVehicleResponse(vehicle))
	}
}

// VehicleDetail returns one vehicle from the directory.
func VehicleDetail(svc vehicles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID, err := vehicleIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vehicle, err := svc.Get(r.Context(), vehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVehicleResponse(vehicle))
	}
}

// VehicleMine lists the caller's vehicles.
func VehicleMine(repo vehicles.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := repo.ListByOwner(r.Context(), middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vehicles"))
			return
		}
		out := make([]vehicleResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newVehicleResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// VehicleQuote prices a prospective booking window without reserving it.
func VehicleQuote(svc vehicles.Service, estimator vehicles.Estimator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID, err := vehicleIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req vehicleQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.ReturnAt != nil && !req.PickupAt.Before(*req.ReturnAt) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "pickup must be before return"))
			return
		}

		vehicle, err := svc.Get(r.Context(), vehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		estimate := estimator.Estimate(vehicle.HourlyRate, req.PickupAt, req.ReturnAt)
		responses.WriteSuccess(w, map[string]any{
			"vehicle_id":     vehicle.ID,
			"hourly_rate":    vehicle.HourlyRate,
			"estimated_cost": estimate,
		})
	}
}

func vehicleIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "vehicleId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id must be a uuid")
	}
	return id, nil
}
