// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		token  string
		header string
		query  string
		want   int
	}{
		{name: "disabled", token: "", want: http.StatusOK},
		{name: "header", token: "s3cret", header: "s3cret", want: http.StatusOK},
		{name: "query param", token: "s3cret", query: "s3cret", want: http.StatusOK},
		{name: "header wins over query", token: "s3cret", header: "wrong", query: "s3cret", want: http.StatusUnauthorized},
		{name: "missing", token: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong", token: "s3cret", header: "s3cre", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target := "/api/jobs"
			if tt.query != "" {
				target += "?apikey=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(TokenHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			RequireToken(tt.token)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
