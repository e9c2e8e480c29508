// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// LogSettingsStore reads and persists log settings.
type LogSettingsStore interface {
	LogSettings() LogSettings
	UpdateLogSettings(level, path string, maxSize, maxBackups int) error
}

type LogSettings struct {
	Level      string `json:"level"`
	Path       string `json:"path"`
	MaxSize    int    `json:"maxSize"`
	MaxBackups int    `json:"maxBackups"`
}

var validLogLevels = map[string]struct{}{
	"TRACE": {}, "DEBUG": {}, "INFO": {}, "WARN": {}, "ERROR": {},
}

type SettingsHandler struct {
	store LogSettingsStore
}

func NewSettingsHandler(store LogSettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetLogSettings handles GET /api/settings/logging
func (h *SettingsHandler) GetLogSettings(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.store.LogSettings())
}

// UpdateLogSettings handles PUT /api/settings/logging. The new settings are
// applied immediately and written back to config.toml.
func (h *SettingsHandler) UpdateLogSettings(w http.ResponseWriter, r *http.Request) {
	var req LogSettings
	if !DecodeJSON(w, r, &req) {
		return
	}

	req.Level = strings.ToUpper(strings.TrimSpace(req.Level))
	if _, ok := validLogLevels[req.Level]; !ok {
		RespondError(w, http.StatusBadRequest, "Invalid log level")
		return
	}
	if req.MaxSize < 0 || req.MaxBackups < 0 {
		RespondError(w, http.StatusBadRequest, "Log rotation values must not be negative")
		return
	}

	if err := h.store.UpdateLogSettings(req.Level, strings.TrimSpace(req.Path), req.MaxSize, req.MaxBackups); err != nil {
		log.Error().Err(err).Msg("Failed to update log settings")
		RespondError(w, http.StatusInternalServerError, "Failed to update log settings")
		return
	}

	RespondJSON(w, http.StatusOK, h.store.LogSettings())
}
