package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andresvelez/carshare-backend/api/controllers"
	"github.com/andresvelez/carshare-backend/api/routes"
	"github.com/andresvelez/carshare-backend/internal/relay"
	"github.com/andresvelez/carshare-backend/internal/rentals"
	"github.com/andresvelez/carshare-backend/internal/vehicles"
	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/db"
	"github.com/andresvelez/carshare-backend/pkg/logger"
	"github.com/andresvelez/carshare-backend/pkg/metrics"
	"github.com/andresvelez/carshare-backend/pkg/migrate"
	"github.com/andresvelez/carshare-backend/pkg/outbox"
	"github.com/andresvelez/carshare-backend/pkg/outbox/idempotency"
	"github.com/andresvelez/carshare-backend/pkg/pubsub"
	"github.com/andresvelez/carshare-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, cfg.PubSub.SourceService)

	vehicleRepo := vehicles.NewRepository(dbClient.DB())
	vehicleSvc, err := vehicles.NewService(vehicleRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create vehicle service", err)
		os.Exit(1)
	}

	estimator := vehicles.NewHourlyEstimator()
	coordinator := rentals.NewCoordinator(cfg.Retry, logg)
	rentalSvc, err := rentals.NewService(rentals.NewRepository(dbClient.DB()), vehicleRepo, estimator, dbClient, outboxSvc, coordinator)
	if err != nil {
		logg.Error(context.Background(), "failed to create rental service", err)
		os.Exit(1)
	}

	hub := relay.NewHub(cfg.Relay, logg, metrics.NewRelayMetrics(prometheus.DefaultRegisterer))

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.PubSub.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := relay.NewConsumer(hub, pubsubClient.RelaySubscription(), idempotencyManager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create relay consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go hub.RunHeartbeat(ctx)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "relay consumer stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
				"pubsub":   pubsubClient,
			},
			RentalService:  rentalSvc,
			VehicleService: vehicleSvc,
			VehicleRepo:    vehicleRepo,
			Estimator:      estimator,
			Hub:            hub,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server stopped")
}
