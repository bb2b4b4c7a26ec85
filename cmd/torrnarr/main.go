package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/torrnarr/internal/api"
	"github.com/amaumene/torrnarr/internal/config"
	"github.com/amaumene/torrnarr/internal/controllers"
	"github.com/amaumene/torrnarr/internal/engine"
	"github.com/amaumene/torrnarr/internal/models"
	"github.com/amaumene/torrnarr/internal/proxy"
	"github.com/amaumene/torrnarr/internal/resume"
	"github.com/amaumene/torrnarr/internal/scheduler"
	"github.com/amaumene/torrnarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Torrnarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize resume snapshot store
	store, err := resume.NewStore(cfg.ResumeDataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize resume store: %w", err)
	}
	logger.Info("Resume store initialized")

	// 5. Derive the engine proxy from preferences
	proxyCfg := proxy.Resolve(cfg.Proxy, proxy.SystemProxy)
	if proxyCfg != nil {
		logger.WithField("proxy", proxyCfg.URL().Redacted()).Info("Engine proxy configured")
	}

	// 6. Initialize torrent engine
	client, err := engine.NewClient(engine.Options{
		DataDir:           cfg.DataDir,
		DownloadRateLimit: cfg.DownloadRateLimit,
		UploadRateLimit:   cfg.UploadRateLimit,
		Proxy:             proxyCfg,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize torrent engine: %w", err)
	}
	defer client.Close()
	logger.Info("Torrent engine initialized")

	// 7. Initialize the lifecycle manager and restore previous downloads
	manager := controllers.NewManager(db, client, store, cfg.DataDir, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.RestoreActive(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore previous downloads")
	}
	go manager.Run(ctx)
	logger.Info("Lifecycle manager running")

	// 8. Initialize scheduler
	sched := scheduler.NewScheduler(manager, cfg.SnapshotIntervalMinutes, cfg.StalledTimeoutMinutes, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 9. Initialize HTTP server
	server := api.NewServer(cfg, db, manager, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 10. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Torrnarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		// Snapshot live sessions before tearing the engine down.
		manager.SnapshotActive()
		cancel()
		manager.Wait()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Torrnarr stopped")
	return nil
}
