// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api serves the HTTP API: job submission and inspection, the live
// event stream and runtime settings.
package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/api/handlers"
	"github.com/autobrr/tubarr/internal/api/middleware"
	"github.com/autobrr/tubarr/internal/api/sse"
	"github.com/autobrr/tubarr/internal/config"
)

//go:embed openapi.yaml
var openAPISpec []byte

const compressMinSize = 1024

// OpenAPISpec returns the embedded API description.
func OpenAPISpec() []byte {
	return openAPISpec
}

type Dependencies struct {
	Config *config.AppConfig
	Jobs   handlers.JobService
	// Events serves /api/events. A fresh relay that never receives events
	// is used when nil.
	Events          *sse.Relay
	ReadinessChecks []handlers.ReadinessCheck
}

type Server struct {
	server *http.Server
	logger zerolog.Logger
	deps   *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		logger: log.Logger.With().Str("module", "http").Logger(),
		deps:   deps,
	}
}

func (s *Server) Handler() (*chi.Mux, error) {
	if s.deps == nil || s.deps.Config == nil || s.deps.Config.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if s.deps.Jobs == nil {
		return nil, errors.New("api: job service is required")
	}

	cfg := s.deps.Config.Config
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "/"
	}
	if !strings.HasPrefix(baseURL, "/") {
		return nil, fmt.Errorf("api: baseUrl must start with /, got %q", cfg.BaseURL)
	}

	events := s.deps.Events
	if events == nil {
		events = sse.NewRelay()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			middleware.TokenHeader,
		},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	api := chi.NewRouter()

	// unauthenticated so probes and clients can reach them without a token
	api.Route("/api/health", handlers.NewHealthHandler(s.deps.ReadinessChecks...).Routes)
	api.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPISpec)
	})

	settings := handlers.NewSettingsHandler(logSettingsAdapter{cfg: s.deps.Config})

	api.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.APIToken))

		r.Get("/api/version", handlers.HandleVersion)
		r.Get("/api/events", events.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SelectiveCompress(compressMinSize, 5))

			r.Route("/api/jobs", handlers.NewJobsHandler(s.deps.Jobs).Routes)
			r.Get("/api/settings/logging", settings.GetLogSettings)
			r.Put("/api/settings/logging", settings.UpdateLogSettings)
		})
	})

	if baseURL == "/" {
		r.Mount("/", api)
	} else {
		prefix := strings.TrimSuffix(baseURL, "/")
		r.Mount(prefix, api)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, prefix+"/", http.StatusFound)
		})
	}

	return r, nil
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	router, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config.Config
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// the event stream clears its own deadline
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	s.logger.Info().Str("addr", addr).Str("baseUrl", cfg.BaseURL).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown closes the event stream first so open streams do not hold the
// HTTP server's graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.deps != nil && s.deps.Events != nil {
		if err := s.deps.Events.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event stream: %w", err))
		}
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type logSettingsAdapter struct {
	cfg *config.AppConfig
}

func (a logSettingsAdapter) LogSettings() handlers.LogSettings {
	level, path, maxSize, maxBackups := a.cfg.LogSettings()
	return handlers.LogSettings{Level: level, Path: path, MaxSize: maxSize, MaxBackups: maxBackups}
}

func (a logSettingsAdapter) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	return a.cfg.UpdateLogSettings(level, path, maxSize, maxBackups)
}
