package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetsafety/immobilizer/internal/api/rest"
	"github.com/fleetsafety/immobilizer/internal/api/rest/handlers"
	"github.com/fleetsafety/immobilizer/internal/clients"
	"github.com/fleetsafety/immobilizer/internal/repository/postgres"
	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/internal/vendors"
	"github.com/fleetsafety/immobilizer/internal/workers"
	"github.com/fleetsafety/immobilizer/pkg/config"
	"github.com/fleetsafety/immobilizer/pkg/database"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
	"github.com/fleetsafety/immobilizer/pkg/validator"
	"github.com/fleetsafety/immobilizer/pkg/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	logger.SetDefault(log)
	log.Info("Starting Fleet Safety Immobilizer",
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment),
	)

	// Initialize database
	db, err := database.NewPostgresDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize Redis
	redisClient, err := database.NewRedisClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize credential vault
	credVault, err := vault.New(cfg.Vault.Passphrase, cfg.Vault.Salt)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	m := metrics.New()

	// Initialize repositories
	vehicleRepo := postgres.NewVehicleRepository(db.DB)
	workflowRepo := postgres.NewWorkflowRepository(db.DB)
	overrideRepo := postgres.NewOverrideRepository(db.DB)
	eventRepo := postgres.NewEventRepository(db.DB)
	providerRepo := postgres.NewProviderRepository(db.DB)
	photoRepo := postgres.NewPhotoRepository(db.DB)

	// Initialize vendor dispatch
	registry := vendors.NewRegistry(providerRepo, credVault, vendors.Options{
		Timeout:       cfg.Vendor.Timeout,
		RatePerSecond: cfg.Vendor.RatePerSecond,
		RateBurst:     cfg.Vendor.RateBurst,
	}, log, m)

	// Initialize services
	notificationSvc, err := services.NewNotificationService(&cfg.Notification, log, m)
	if err != nil {
		return fmt.Errorf("failed to initialize notification service: %w", err)
	}

	killSwitchSvc := services.NewKillSwitchService(vehicleRepo, eventRepo, registry, notificationSvc, log, m)

	photoClient := clients.NewPhotoValidationClient(&cfg.PhotoAPI, log)
	tracker := services.NewWorkflowTracker(workflowRepo, photoRepo, photoClient, killSwitchSvc, redisClient, log, m)

	overrideSvc := services.NewOverrideService(
		overrideRepo, workflowRepo, eventRepo, killSwitchSvc,
		notificationSvc, validator.New(), log, m,
	)

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expirationWorker := workers.NewOverrideExpirationWorker(overrideSvc, log, m, cfg.Workers.OverrideExpiryInterval)
	expirationWorker.Start(ctx)
	defer expirationWorker.Stop()

	syncWorker := workers.NewVendorSyncWorker(killSwitchSvc, log, m, cfg.Workers.VendorSyncInterval, cfg.Workers.VendorSyncBatchSize)
	syncWorker.Start(ctx)
	defer syncWorker.Stop()

	// HTTP server
	h := handlers.NewHandlers(log, tracker, overrideSvc, killSwitchSvc, eventRepo,
		&handlers.HealthCheckers{DB: db, Redis: redisClient}, cfg.App.Version)
	router := rest.NewRouter(log, h)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server listening", logger.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("Shutdown signal received", logger.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
