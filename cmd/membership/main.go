package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	cfg "github.com/opendev/membership-app/backend/config"
	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/handlers"
	"github.com/opendev/membership-app/backend/internal/usecases"
	"github.com/opendev/membership-app/backend/internal/usecases/repository"
	"github.com/opendev/membership-app/backend/internal/workers"
	"github.com/opendev/membership-app/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Optional .env for local development
	_ = godotenv.Load()

	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{Level: config.Log.Level}
	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))

	ctx := context.Background()

	logger.Info("Starting application with configuration",
		"environment", config.App.Environment,
		"debug", config.App.Debug,
		"rpc_url", config.Blockchain.RPCURL,
		"receiving_address", config.Payments.ReceivingAddress,
		"server_port", config.HTTP.Port)

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pg.Close()

	migrationsPath := resolveMigrationsPath()
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}

	// Create repositories
	usersRepository := repository.NewUsersRepository(logger, pg)
	membershipsRepository := repository.NewMembershipsRepository(logger, pg)
	recoveryCasesRepository := repository.NewRecoveryCasesRepository(logger, pg)

	// The ledger client is optional: without chain configuration the scanner
	// stays inert and the validator rejects requests, but the service runs.
	var ledger ports.LedgerClient
	if config.Blockchain.RPCURL != "" {
		chainClient, err := usecases.NewChainClient(ctx, logger,
			config.Blockchain.RPCURL,
			time.Duration(config.Blockchain.QueryTimeoutSeconds)*time.Second)
		if err != nil {
			logger.Error("Failed to create chain client", "error", err)
		} else {
			defer chainClient.Close()
			ledger = chainClient
		}
	}

	// Create usecases
	activationService := usecases.NewActivationService(logger, usersRepository, membershipsRepository, pg.Transactor)
	validatorService := usecases.NewValidatorService(logger, config, ledger, membershipsRepository, usersRepository, activationService)
	orphanService := usecases.NewOrphanService(logger, config, ledger, membershipsRepository, recoveryCasesRepository)
	recoveryService := usecases.NewRecoveryService(logger, recoveryCasesRepository, usersRepository, activationService, pg.Transactor)

	// Create handlers
	feedManager := handlers.NewFeedManager(logger)
	orphanService.SetNotifier(feedManager)

	adminGuard := handlers.NewAdminGuard(logger, config.Payments.AdminSecret)
	httpHandler := handlers.NewHTTPHandler(logger, validatorService, recoveryService, usersRepository, adminGuard, feedManager)

	// Start the orphan scanner worker
	scanner := workers.NewOrphanScanner(logger, orphanService,
		time.Duration(config.Payments.ScanIntervalMinutes)*time.Minute)
	go func() {
		logger.Info("Starting orphan scanner")
		scanner.Start(ctx)
	}()
	defer scanner.Stop()

	// Create router
	router := mux.NewRouter()
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", handlers.AdminSecretHeader},
		AllowCredentials: true,
	})
	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

func resolveMigrationsPath() string {
	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}
	return migrationsPath
}
