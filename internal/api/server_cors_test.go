// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	router, err := NewServer(newTestDependencies(t)).Handler()
	require.NoError(t, err)

	tests := []struct {
		name           string
		method         string
		origin         string
		requestHeaders string
		wantStatus     int
		wantOrigin     string
		wantHeader     string
	}{
		{
			name:       "preflight skips the token check",
			method:     http.MethodOptions,
			origin:     "https://example.com",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://example.com",
		},
		{
			// reverse proxies and some frontends send it
			name:           "preflight allows x-requested-with",
			method:         http.MethodOptions,
			origin:         "https://example.com",
			requestHeaders: "x-requested-with",
			wantStatus:     http.StatusNoContent,
			wantOrigin:     "https://example.com",
			wantHeader:     "x-requested-with",
		},
		{
			name:           "preflight allows the token header",
			method:         http.MethodOptions,
			origin:         "https://example.com",
			requestHeaders: "x-api-token",
			wantStatus:     http.StatusNoContent,
			wantOrigin:     "https://example.com",
			wantHeader:     "x-api-token",
		},
		{
			name:       "unknown origin gets no allow header",
			method:     http.MethodOptions,
			origin:     "https://evil.example",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "simple request still needs the token",
			method:     http.MethodGet,
			origin:     "https://example.com",
			wantStatus: http.StatusUnauthorized,
			wantOrigin: "https://example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/jobs", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			if tt.requestHeaders != "" {
				req.Header.Set("Access-Control-Request-Headers", tt.requestHeaders)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.wantHeader != "" {
				assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), tt.wantHeader)
			}
		})
	}
}
