// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/tubarr/internal/api"
	"github.com/autobrr/tubarr/internal/api/handlers"
	"github.com/autobrr/tubarr/internal/api/sse"
	"github.com/autobrr/tubarr/internal/buildinfo"
	"github.com/autobrr/tubarr/internal/config"
	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/fetch"
	"github.com/autobrr/tubarr/internal/metrics"
	"github.com/autobrr/tubarr/internal/search"
	"github.com/autobrr/tubarr/internal/services/jobs"
	"github.com/autobrr/tubarr/internal/services/notifications"
	"github.com/autobrr/tubarr/internal/services/scheduler"
)

const shutdownTimeout = 15 * time.Second

func RunServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.SetupLogging(); err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer cfg.CloseLogs()
			cfg.Watch()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	build := buildinfo.Get()
	log.Info().Str("version", build.Version).Str("commit", build.Commit).Str("go", build.GoVersion).Str("config", cfg.ConfigPath()).Msg("Starting tubarr")
	redacted := cfg.Config.Redacted()
	log.Debug().Interface("config", &redacted).Msg("Loaded configuration")

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	hub := events.NewHub(log.Logger.With().Str("module", "events").Logger())
	hub.Start(ctx)

	searcher, err := search.NewYTDLP(cfg.Config.YtdlpPath, cfg.Config.YtdlpExtraArgs)
	if err != nil {
		return err
	}
	fetcher, err := fetch.NewYTDLP(fetch.Options{
		Executable: cfg.Config.YtdlpPath,
		ExtraArgs:  cfg.Config.YtdlpExtraArgs,
		Retries:    cfg.Config.FetchRetries,
	})
	if err != nil {
		return err
	}

	sched := scheduler.NewService(scheduler.Config{
		PollInterval:           cfg.Config.PollDuration(),
		SeriesInterval:         cfg.Config.SeriesDuration(),
		ResolveLimit:           cfg.Config.ResolveLimit,
		SeriesLimit:            cfg.Config.SeriesLimit,
		DownloadRoot:           cfg.GetDownloadRoot(),
		MaxConcurrentDownloads: cfg.Config.MaxConcurrentDownloads,
	}, store, searcher, fetcher, hub)

	metricsManager := metrics.NewManager(store, db)
	sched.SetRecorder(metricsManager.Scheduler())

	notifier, err := notifications.NewService(
		cfg.Config.NotificationURLs,
		cfg.Config.NotificationEvents,
		store,
		log.Logger.With().Str("module", "notifications").Logger(),
	)
	if err != nil {
		return err
	}
	notifier.Start(ctx, hub)

	relay := sse.NewRelay()
	relay.Start(ctx, hub)

	server := api.NewServer(&api.Dependencies{
		Config:          cfg,
		Jobs:            jobs.NewService(store, sched, hub),
		Events:          relay,
		ReadinessChecks: []handlers.ReadinessCheck{db.Ping},
	})

	if err := sched.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	var metricsServer *metrics.MetricsServer
	if cfg.Config.MetricsEnabled {
		metricsServer = metrics.NewMetricsServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUsers)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				errCh <- err
			}
		}()
	}

	pprofServer := api.StartPprofServer(cfg.Config)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Server failed, shutting down")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if pprofServer != nil {
		_ = pprofServer.Shutdown(shutdownCtx)
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Scheduler did not stop in time; running jobs are requeued on next start")
	}

	log.Info().Msg("Stopped")
	return runErr
}
