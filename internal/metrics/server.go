// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// MetricsServer serves /metrics on its own listener so it can be exposed
// separately from the API.
type MetricsServer struct {
	manager        *Manager
	server         *http.Server
	basicAuthUsers map[string]string
}

// NewMetricsServer builds the server. basicAuthUsers is a comma separated
// list of user:password pairs; malformed entries are ignored.
func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *MetricsServer {
	users := parseBasicAuthUsers(basicAuthUsers)

	r := chi.NewRouter()

	handler := promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	if len(users) > 0 {
		r.With(BasicAuth("metrics", users)).Handle("/metrics", handler)
	} else {
		r.Handle("/metrics", handler)
	}

	return &MetricsServer{
		manager:        manager,
		basicAuthUsers: users,
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func parseBasicAuthUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			log.Warn().Msg("Ignoring malformed metrics basic auth entry")
			continue
		}
		users[user] = pass
	}
	return users
}

func (s *MetricsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Bool("basicAuth", len(s.basicAuthUsers) > 0).Msg("Starting metrics server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *MetricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// BasicAuth rejects requests whose credentials do not match one of users.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok {
				if expected, found := users[user]; found && subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, realm))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
