// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jobs validates user submissions and cancellations before they
// reach the store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/pkg/pathutil"
	"github.com/autobrr/tubarr/pkg/slug"
)

var (
	// ErrValidation wraps every submission rejected before it reaches the store.
	ErrValidation = errors.New("invalid job submission")
	ErrEmptyQuery = fmt.Errorf("%w: query is required", ErrValidation)
)

// Submission is a user request to track a query.
type Submission struct {
	Query        string `json:"query" yaml:"query"`
	Language     string `json:"language" yaml:"language"`
	IsSeries     bool   `json:"isSeries" yaml:"series"`
	AlwaysSeries bool   `json:"alwaysSeries" yaml:"always"`
	MinLength    int    `json:"minLength" yaml:"minLength"`
	MaxLength    int    `json:"maxLength" yaml:"maxLength"`
	FolderName   string `json:"folderName" yaml:"folder"`
}

// MonitorController starts and stops series monitors. The scheduler
// implements it; nil disables monitor control.
type MonitorController interface {
	StartSeriesMonitor(parentID int64)
	StopSeriesMonitor(parentID int64)
}

type Service struct {
	store    *models.JobStore
	monitors MonitorController
	sink     events.Sink
}

func NewService(store *models.JobStore, monitors MonitorController, sink events.Sink) *Service {
	if sink == nil {
		sink = events.Discard
	}
	return &Service{store: store, monitors: monitors, sink: sink}
}

// Normalize trims fields, fills the default folder and validates the result.
func (sub Submission) Normalize() (Submission, error) {
	sub.Query = strings.TrimSpace(sub.Query)
	sub.Language = strings.TrimSpace(sub.Language)
	sub.FolderName = strings.TrimSpace(sub.FolderName)

	if sub.Query == "" {
		return sub, ErrEmptyQuery
	}
	if sub.MinLength < 0 || sub.MaxLength < 0 {
		return sub, fmt.Errorf("%w: length bounds must not be negative", ErrValidation)
	}
	if sub.MinLength > 0 && sub.MaxLength > 0 && sub.MinLength > sub.MaxLength {
		return sub, fmt.Errorf("%w: minLength %d exceeds maxLength %d", ErrValidation, sub.MinLength, sub.MaxLength)
	}

	if sub.FolderName == "" {
		sub.FolderName = slug.Make(sub.Query)
	} else {
		folder, err := pathutil.SanitizeFolder(sub.FolderName)
		if err != nil {
			return sub, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		sub.FolderName = folder
	}

	return sub, nil
}

// Submit stores a new pending parent job and starts its series monitor
// when it is an always-series query.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Job, error) {
	sub, err := sub.Normalize()
	if err != nil {
		return nil, err
	}

	job, err := s.store.Create(ctx, &models.JobCreate{
		Query:        sub.Query,
		Language:     sub.Language,
		IsSeries:     sub.IsSeries,
		AlwaysSeries: sub.AlwaysSeries,
		MinLength:    sub.MinLength,
		MaxLength:    sub.MaxLength,
		FolderName:   sub.FolderName,
		Status:       models.JobStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log.Info().
		Int64("jobID", job.ID).
		Str("query", job.Query).
		Bool("series", job.IsSeries).
		Bool("always", job.AlwaysSeries).
		Str("folder", job.FolderName).
		Msg("jobs: submitted")

	s.sink.Emit(events.NameJobCreated, events.JobCreated{JobID: job.ID})

	if job.IsSeriesMonitor() && s.monitors != nil {
		s.monitors.StartSeriesMonitor(job.ID)
	}

	return job, nil
}

// ImportResult reports the outcome of one entry of a batch import.
type ImportResult struct {
	Query string      `json:"query"`
	Job   *models.Job `json:"job,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Import submits every entry, continuing past invalid ones.
func (s *Service) Import(ctx context.Context, subs []Submission) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(subs))
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		job, err := s.Submit(ctx, sub)
		result := ImportResult{Query: strings.TrimSpace(sub.Query), Job: job}
		if err != nil {
			if !errors.Is(err, ErrValidation) {
				return results, err
			}
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

// Cancel marks a job cancelled and stops its series monitor. With cascade,
// children that have not started running are cancelled too.
func (s *Service) Cancel(ctx context.Context, id int64, cascade bool) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return err
	}

	if s.monitors != nil {
		s.monitors.StopSeriesMonitor(id)
	}

	var cancelledChildren int64
	if cascade {
		n, err := s.store.CancelChildren(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to cancel children of job %d: %w", id, err)
		}
		cancelledChildren = n
	}

	log.Info().Int64("jobID", id).Bool("cascade", cascade).Int64("children", cancelledChildren).Msg("jobs: cancelled")
	s.sink.Emit(events.NameJobUpdated, events.JobUpdated{Event: string(models.JobStatusCancelled), JobID: id})

	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Job, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.store.List(ctx, filter)
}

// Summary returns job counts per status.
func (s *Service) Summary(ctx context.Context) (map[models.JobStatus]int, error) {
	return s.store.CountByStatus(ctx)
}
