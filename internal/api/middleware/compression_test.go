// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   encoding
	}{
		{"", encodingNone},
		{"identity", encodingNone},
		{"gzip", encodingGzip},
		{"gzip, br", encodingBrotli},
		{"gzip, br, zstd", encodingZstd},
		{"br;q=0, gzip;q=0.5", encodingGzip},
		{"*", encodingZstd},
		{"zstd;q=0, *;q=0.3", encodingBrotli},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, negotiate(tt.header))
		})
	}
}

func jsonHandler(body string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func TestSelectiveCompress_LargeJSONGzip(t *testing.T) {
	t.Parallel()

	body := `{"jobs":"` + strings.Repeat("x", 4096) + `"}`
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	SelectiveCompress(1024, 5)(jsonHandler(body, http.StatusCreated)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

func TestSelectiveCompress_Brotli(t *testing.T) {
	t.Parallel()

	body := `{"jobs":"` + strings.Repeat("y", 4096) + `"}`
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()

	SelectiveCompress(1024, 5)(jsonHandler(body, http.StatusOK)).ServeHTTP(rec, req)

	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	decoded, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

func TestSelectiveCompress_SmallBodyUntouched(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	SelectiveCompress(1024, 5)(jsonHandler(`{"status":"ok"}`, http.StatusOK)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSelectiveCompress_EventStreamBypassed(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(*compressWriter)
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	})
	SelectiveCompress(0, 5)(handler).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestSelectiveCompress_NoContent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/1/cancel", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	SelectiveCompress(1024, 5)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}
