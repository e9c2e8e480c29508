// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/domain"
)

// StartPprofServer starts the profiling server if enabled. The returned
// server is nil when profiling is off.
func StartPprofServer(cfg *domain.Config) *http.Server {
	if cfg == nil || !cfg.PprofEnabled {
		return nil
	}

	pprofAddr := fmt.Sprintf("%s:%d", cfg.PprofHost, cfg.PprofPort)

	r := chi.NewRouter()
	// registered on http.DefaultServeMux by the net/http/pprof import
	r.HandleFunc("/debug/pprof/*", func(w http.ResponseWriter, req *http.Request) {
		http.DefaultServeMux.ServeHTTP(w, req)
	})

	srv := &http.Server{
		Addr:              pprofAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting pprof server on %s", pprofAddr)
		log.Info().Msgf("  - CPU:        go tool pprof http://%s/debug/pprof/profile?seconds=30", pprofAddr)
		log.Info().Msgf("  - Heap:       go tool pprof http://%s/debug/pprof/heap", pprofAddr)
		log.Info().Msgf("  - Goroutines: go tool pprof http://%s/debug/pprof/goroutine", pprofAddr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Profiling server failed")
		}
	}()

	return srv
}
