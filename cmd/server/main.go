package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/crosspost/app/adapters"
	"github.com/lysyi3m/crosspost/app/api"
	"github.com/lysyi3m/crosspost/app/cfg"
	"github.com/lysyi3m/crosspost/app/database"
	"github.com/lysyi3m/crosspost/app/orchestrator"
	"github.com/lysyi3m/crosspost/app/platform"
	"github.com/lysyi3m/crosspost/app/queue"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	setupLogger(appConfig.Debug)
	slog.Info("Starting crosspost server", "version", appConfig.Version)

	if err := run(appConfig); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(c *cfg.Cfg) error {
	db, err := database.Open(c.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	slog.Info("Database opened", "path", c.DBPath)

	settings := platform.NewSettingsCache(c.PlatformsDir)
	if err := settings.Run(); err != nil {
		return fmt.Errorf("failed to load platform settings: %w", err)
	}
	slog.Info("Platform settings loaded", "dir", c.PlatformsDir, "count", settings.Count())

	registry := platform.NewRegistry()
	adapters.Register(registry, adapters.Options{Settings: settings, UserAgent: c.UserAgent})
	slog.Info("Platform adapters registered", "platforms", registry.Names())

	store := database.NewQueueRepository(db)
	contents := database.NewContentRepository(db)
	publications := database.NewPublicationRepository(db)

	q := queue.New(store, nil, queue.Options{
		Interval: c.SchedulerIntervalDuration(),
		Workers:  c.WorkerCount,
		Retry: queue.RetryPolicy{
			MaxRetries: c.MaxRetries,
			BaseDelay:  c.RetryBaseDelayDuration(),
			MaxDelay:   c.RetryMaxDelayDuration(),
		},
		Timeout: func(name string) time.Duration {
			return settings.Get(name).TimeoutDuration()
		},
	})

	orch := orchestrator.New(registry, q, contents, publications, orchestrator.Options{
		Concurrency: c.WorkerCount,
		Settings:    settings,
		Credentials: platform.EnvCredentials{Settings: settings},
		Project:     platform.ProjectContext{SiteURL: c.SiteURL},
		InsertLinks: c.InsertLinks,
	})

	housekeeper, err := queue.NewHousekeeper(store, c.Retention(), c.PurgeSchedule)
	if err != nil {
		return err
	}

	q.Start()
	defer q.Stop()
	housekeeper.Start()
	defer housekeeper.Stop()

	importer := adapters.NewImporter(registry, nil, c.UserAgent)
	handler := api.NewHandler(orch, registry, settings, contents, publications, importer, q)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      api.NewServer(handler, c.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Queue and housekeeping stop via defer, so running jobs record their
	// outcome before the database closes.
	return runErr
}
