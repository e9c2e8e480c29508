// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/services/jobs"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// RespondJobError maps service and store errors to status codes.
func RespondJobError(w http.ResponseWriter, err error, fallbackMessage string) {
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		RespondError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, jobs.ErrValidation):
		RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDuplicateItem):
		RespondError(w, http.StatusConflict, "Item is already tracked by another job")
	default:
		log.Error().Err(err).Msg(fallbackMessage)
		RespondError(w, http.StatusInternalServerError, fallbackMessage)
	}
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional is DecodeJSON that also accepts an empty body.
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseIntParam64 extracts and validates a positive int64 URL parameter.
// Returns the value and true on success, or 0 and false if invalid (error already sent).
func ParseIntParam64(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int64, bool) {
	str := strings.TrimSpace(chi.URLParam(r, paramName))
	if str == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return 0, false
	}
	value, err := strconv.ParseInt(str, 10, 64)
	if err != nil || value <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// ParseJobID reads the {jobID} URL parameter.
func ParseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return ParseIntParam64(w, r, "jobID", "job ID")
}

// PaginationParams holds parsed pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination extracts and validates pagination parameters from query string.
// Uses provided defaults and enforces maxLimit. Invalid values are silently ignored.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	p := PaginationParams{Limit: defaultLimit, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			p.Limit = min(parsed, maxLimit)
		}
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}

	return p
}
