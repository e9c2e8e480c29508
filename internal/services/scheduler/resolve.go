// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/search"
)

// resolvePending resolves every unresolved pending or waiting parent.
// A failure on one job never blocks the others.
func (s *Service) resolvePending(ctx context.Context) error {
	jobs, err := s.store.ListResolvable(ctx)
	if err != nil {
		return fmt.Errorf("list resolvable jobs: %w", err)
	}

	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.resolveJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", job.ID, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Service) candidates(ctx context.Context, job *models.Job, limit int) ([]search.Item, error) {
	items, err := s.searcher.Search(ctx, job.Query, job.Language, limit)
	if err != nil {
		return nil, err
	}
	return search.FilterByDuration(items, job.MinLength, job.MaxLength), nil
}

func (s *Service) resolveJob(ctx context.Context, job *models.Job) error {
	items, err := s.candidates(ctx, job, s.cfg.ResolveLimit)
	if err != nil {
		// provider failures leave the job untouched until the next cycle
		log.Warn().Err(err).Int64("jobID", job.ID).Str("query", job.Query).Msg("scheduler: search failed")
		s.emitLog("warning", fmt.Sprintf("search failed for job %d: %v", job.ID, err))
		return nil
	}

	if len(items) == 0 {
		return s.markWaiting(ctx, job)
	}

	if !job.IsSeries {
		return s.resolveSingle(ctx, job, items)
	}

	if _, stopped, err := s.fanOut(ctx, job, items); err != nil || stopped {
		return err
	}

	changed, err := s.store.TransitionStatus(ctx, job.ID, models.JobStatusActive, models.JobStatusPending, models.JobStatusWaiting)
	if err != nil {
		return err
	}
	if changed {
		log.Debug().Int64("jobID", job.ID).Msg("scheduler: series parent active")
		s.emitStatus(job.ID, models.JobStatusActive, "")
	}

	if job.IsSeriesMonitor() {
		s.StartSeriesMonitor(job.ID)
	}

	return nil
}

func (s *Service) markWaiting(ctx context.Context, job *models.Job) error {
	changed, err := s.store.TransitionStatus(ctx, job.ID, models.JobStatusWaiting, models.JobStatusPending)
	if err != nil {
		return err
	}
	if changed {
		log.Debug().Int64("jobID", job.ID).Str("query", job.Query).Msg("scheduler: no candidates, waiting")
		s.emitStatus(job.ID, models.JobStatusWaiting, "")
	}
	return nil
}

// resolveSingle binds the job to its best candidate. Candidates already
// owned by another job are skipped in rank order.
func (s *Service) resolveSingle(ctx context.Context, job *models.Job, items []search.Item) error {
	for _, item := range items {
		resolved, err := s.store.Resolve(ctx, job.ID, item.ID)
		if errors.Is(err, models.ErrDuplicateItem) {
			log.Debug().Int64("jobID", job.ID).Str("item", item.ID).Msg("scheduler: candidate already tracked, trying next")
			continue
		}
		if err != nil {
			return err
		}
		if !resolved {
			// cancelled or resolved elsewhere since listing
			return nil
		}

		log.Info().Int64("jobID", job.ID).Str("item", item.ID).Str("title", item.Title).Msg("scheduler: job resolved")
		s.emitStatus(job.ID, models.JobStatusQueued, "")
		return nil
	}

	return s.markWaiting(ctx, job)
}

// fanOut inserts a queued child for every candidate not yet tracked. It
// re-reads the parent before each insert and stops as soon as the parent
// is gone or cancelled.
func (s *Service) fanOut(ctx context.Context, parent *models.Job, items []search.Item) (int, bool, error) {
	inserted := 0
	defer func() {
		if inserted > 0 {
			s.recorder.ChildrenInserted(inserted)
		}
	}()

	for _, item := range items {
		if item.ID == "" {
			continue
		}

		current, err := s.store.GetByID(ctx, parent.ID)
		if errors.Is(err, models.ErrJobNotFound) {
			return inserted, true, nil
		}
		if err != nil {
			return inserted, false, err
		}
		if current.Status == models.JobStatusCancelled {
			log.Debug().Int64("parentID", parent.ID).Msg("scheduler: parent cancelled, stopping fan-out")
			return inserted, true, nil
		}

		parentID := current.ID
		id, ok, err := s.store.InsertChild(ctx, &models.JobCreate{
			Query:          current.Query,
			Language:       current.Language,
			AlwaysSeries:   current.AlwaysSeries,
			MinLength:      current.MinLength,
			MaxLength:      current.MaxLength,
			FolderName:     current.FolderName,
			Status:         models.JobStatusQueued,
			ExternalItemID: item.ID,
			ParentID:       &parentID,
		})
		if err != nil {
			return inserted, false, err
		}
		if !ok {
			continue
		}

		inserted++
		log.Info().Int64("jobID", id).Int64("parentID", parentID).Str("item", item.ID).Str("title", item.Title).Msg("scheduler: child job queued")
		s.sink.Emit(events.NameJobCreated, events.JobCreated{
			JobID:          id,
			ParentID:       parentID,
			ExternalItemID: item.ID,
			Title:          item.Title,
		})
	}

	return inserted, false, nil
}
