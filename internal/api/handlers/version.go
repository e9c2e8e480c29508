// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/tubarr/internal/buildinfo"
)

func HandleVersion(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, buildinfo.Get())
}
