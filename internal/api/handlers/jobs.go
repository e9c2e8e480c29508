// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/services/jobs"
)

const (
	defaultJobsLimit = 100
	maxJobsLimit     = 1000
)

// JobService is the part of jobs.Service the handlers use.
type JobService interface {
	Submit(ctx context.Context, sub jobs.Submission) (*models.Job, error)
	Import(ctx context.Context, subs []jobs.Submission) ([]jobs.ImportResult, error)
	Cancel(ctx context.Context, id int64, cascade bool) error
	Get(ctx context.Context, id int64) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.Job, error)
	Summary(ctx context.Context) (map[models.JobStatus]int, error)
}

type JobsHandler struct {
	svc JobService
}

func NewJobsHandler(svc JobService) *JobsHandler {
	return &JobsHandler{svc: svc}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Get("/summary", h.Summary)
	r.Route("/{jobID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/cancel", h.Cancel)
	})
}

// List handles GET /api/jobs?status=&parent=&limit=&offset=
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, defaultJobsLimit, maxJobsLimit)
	filter := models.JobFilter{Limit: page.Limit, Offset: page.Offset}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := models.ParseJobStatus(raw)
		if err != nil {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("parent")); raw != "" {
		parentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parentID <= 0 {
			RespondError(w, http.StatusBadRequest, "Invalid parent ID")
			return
		}
		filter.ParentID = &parentID
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		RespondJobError(w, err, "Failed to list jobs")
		return
	}

	RespondJSON(w, http.StatusOK, list)
}

// Create handles POST /api/jobs
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var sub jobs.Submission
	if !DecodeJSON(w, r, &sub) {
		return
	}

	job, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		RespondJobError(w, err, "Failed to create job")
		return
	}

	RespondJSON(w, http.StatusCreated, job)
}

// Import handles POST /api/jobs/import with a JSON array of submissions.
func (h *JobsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var subs []jobs.Submission
	if !DecodeJSON(w, r, &subs) {
		return
	}

	results, err := h.svc.Import(r.Context(), subs)
	if err != nil {
		RespondJobError(w, err, "Failed to import jobs")
		return
	}

	RespondJSON(w, http.StatusOK, results)
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		RespondJobError(w, err, "Failed to load job")
		return
	}

	RespondJSON(w, http.StatusOK, job)
}

type cancelRequest struct {
	Cascade bool `json:"cascade"`
}

// Cancel handles POST /api/jobs/{jobID}/cancel. Cancelling twice is fine.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseJobID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	if v := r.URL.Query().Get("cascade"); v != "" {
		req.Cascade, _ = strconv.ParseBool(v)
	}

	if err := h.svc.Cancel(r.Context(), id, req.Cascade); err != nil {
		RespondJobError(w, err, "Failed to cancel job")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /api/jobs/summary
func (h *JobsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Summary(r.Context())
	if err != nil {
		RespondJobError(w, err, "Failed to count jobs")
		return
	}

	RespondJSON(w, http.StatusOK, counts)
}
