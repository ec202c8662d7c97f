package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"pennywise/internal/amqp"
	"pennywise/internal/billing"
	"pennywise/internal/cloud"
	fstore "pennywise/internal/cloud/firestore"
	mem "pennywise/internal/cloud/memory"
	"pennywise/internal/config"
	"pennywise/internal/services"
	"pennywise/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting pennywise")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Choose cloud backend (default: memory).
	var cloudStore cloud.Store
	switch cfg.CloudBackend {
	case "firestore":
		client, err := fstore.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Firestore client", "error", err)
			os.Exit(1)
		}
		cloudStore = client
		logger.Info("Initialized Firestore backend", "project_id", cfg.FirestoreProjectID)
	default:
		cloudStore = mem.NewStore()
		logger.Info("Initialized memory cloud backend")
	}

	// AMQP is optional; without it auto-sync pushes in-process.
	var requester services.BackupRequester
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		requester = amqpClient
		logger.Info("Backup requests will be queued", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, auto-sync pushes in-process")
	}

	// Optional static entitlement list for local deployments.
	var entitlements billing.EntitlementProvider
	if uids := os.Getenv("PREMIUM_UIDS"); uids != "" {
		entitlements = billing.NewStaticProvider(strings.Split(uids, ",")...)
	}

	autosync := services.NewAutoSync(repo, cloudStore, requester)
	coordinator := services.NewCoordinator(repo, cloudStore, entitlements, autosync, nil)

	if err := coordinator.Initialize(ctx); err != nil {
		logger.Error("Initialization failed", "error", err)
		os.Exit(1)
	}

	snap := coordinator.Snapshot()
	logger.Info("Ready",
		"categories", len(snap.Categories),
		"transactions", len(snap.Transactions),
		"month_expenses_cents", snap.Dashboard.TotalExpenses.Cents,
		"month_income_cents", snap.Dashboard.TotalIncome.Cents)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutdown complete")
}
