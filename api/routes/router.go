package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andresvelez/carshare-backend/api/controllers"
	"github.com/andresvelez/carshare-backend/api/middleware"
	"github.com/andresvelez/carshare-backend/internal/relay"
	"github.com/andresvelez/carshare-backend/internal/rentals"
	"github.com/andresvelez/carshare-backend/internal/vehicles"
	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	Readiness      map[string]controllers.Pinger
	RentalService  rentals.Service
	VehicleService vehicles.Service
	VehicleRepo    vehicles.Repository
	Estimator      vehicles.Estimator
	Hub            *relay.Hub
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readiness))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Route("/rentals", func(r chi.Router) {
			r.Post("/", controllers.RentalCreate(params.RentalService, logg))
			r.Get("/", controllers.RentalList(params.RentalService, logg))
			r.Get("/events", controllers.RentalEvents(params.Hub, logg))
			r.Get("/{rentalId}", controllers.RentalDetail(params.RentalService, logg))
			r.Post("/{rentalId}/pickup", controllers.RentalPickup(params.RentalService, logg))
			r.Post("/{rentalId}/return", controllers.RentalReturn(params.RentalService, logg))
			r.Post("/{rentalId}/approve-return", controllers.RentalApproveReturn(params.RentalService, logg))
			r.Post("/{rentalId}/cancel", controllers.RentalCancel(params.RentalService, logg))
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Post("/", controllers.VehicleList(params.VehicleService, logg))
			r.Get("/mine", controllers.VehicleMine(params.VehicleRepo, logg))
			r.Get("/{vehicleId}", controllers.VehicleDetail(params.VehicleService, logg))
			r.Post("/{vehicleId}/retire", controllers.VehicleRetire(params.VehicleService, logg))
			r.Post("/{vehicleId}/quote", controllers.VehicleQuote(params.VehicleService, params.Estimator, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.RequireRole(logg, "admin"))
		r.Get("/relay/subscriptions", controllers.RelaySubscriptionCount(params.Hub))
	})

	return r
}
