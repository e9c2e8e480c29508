// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	TokenHeader     = "X-API-Token"
	TokenQueryParam = "apikey"
)

// RequireToken rejects requests that do not carry token in the X-API-Token
// header or the apikey query param. An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		expected := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(TokenHeader)
			if got == "" {
				// EventSource cannot set headers
				got = r.URL.Query().Get(TokenQueryParam)
			}

			if got == "" || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				log.Debug().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected request with missing or invalid API token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
