// Package main provides the entry point for the fish NFT generation backend.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fishit-backend/internal/api"
	"github.com/fishit-backend/internal/chain"
	"github.com/fishit-backend/internal/config"
	"github.com/fishit-backend/internal/genai"
	"github.com/fishit-backend/internal/ledger"
	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/pinning"
	"github.com/fishit-backend/internal/pipeline"
	"github.com/fishit-backend/internal/progress"
	"github.com/fishit-backend/internal/rarity"
	"github.com/fishit-backend/internal/storage"
	"github.com/fishit-backend/internal/types"
)

func main() {
	fmt.Println("FishIt NFT Backend")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Verify the pinning service before accepting any events
	pinner := pinning.NewClient(&cfg.Pinning, logger)
	if err := pinner.TestAuthentication(ctx); err != nil {
		logger.WithError(err).Fatal("Pinata authentication failed")
	}
	logger.Info("Pinata authentication verified")

	// Select the snapshot store backing the idempotency ledger
	var store ledger.SnapshotStore
	switch cfg.Ledger.Store {
	case "redis":
		redisStore, err := ledger.NewRedisStore(&cfg.Database.Redis, "")
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("Using Redis snapshot store")
	default:
		store = ledger.NewFileStore(cfg.Ledger.Path)
		logger.WithField("path", cfg.Ledger.Path).Info("Using file snapshot store")
	}

	ledgerOpts := ledger.Options{
		FlushEvery: cfg.Ledger.FlushEvery,
		MaxRecords: cfg.Ledger.MaxRecords,
		Retention:  cfg.Ledger.Retention,
	}

	// Optional Postgres archive for processed events
	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()

		databaseURL := storage.DatabaseURL(&cfg.Database.Postgres)
		if err := storage.RunMigrations(databaseURL, cfg.Database.Postgres.MigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}

		ledgerOpts.Archive = storage.NewEventArchive(postgres)
		logger.Info("Postgres event archive enabled")
	}

	led := ledger.New(store, ledgerOpts, logger)

	// Periodic sweep of expired ledger records
	go func() {
		ticker := time.NewTicker(cfg.Ledger.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				led.Sweep()
			}
		}
	}()

	// Chain connectivity
	chainClient, err := chain.NewClient(ctx, &cfg.Chain, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer chainClient.Close()

	contract := common.HexToAddress(cfg.Chain.ContractAddress)
	watcher, err := chain.NewWatcher(chainClient, contract, cfg.Chain.PollInterval, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create event watcher")
	}

	// Pipeline collaborators
	hub := progress.NewHub(logger)
	generator := genai.NewClient(&cfg.Generation, logger)
	calculator := rarity.NewCalculator()

	pipe := pipeline.New(generator, pinner, chainClient, led, hub, calculator, logger)

	if err := watcher.Start(ctx, func(ctx context.Context, event *types.CaughtFishEvent) {
		pipe.ProcessEvent(ctx, event)
	}); err != nil {
		logger.WithError(err).Fatal("Failed to start event watcher")
	}
	logger.WithFields(map[string]interface{}{
		"contract":      cfg.Chain.ContractAddress,
		"poll_interval": cfg.Chain.PollInterval.String(),
	}).Info("Event watcher started")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		KeepAliveInterval: cfg.Server.KeepAliveInterval,
	}

	server := api.NewServer(serverConfig, hub, led, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Persist the ledger so no processed event is replayed on restart
	if err := led.Flush(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush ledger")
	}

	logger.Info("Server exited")
}
