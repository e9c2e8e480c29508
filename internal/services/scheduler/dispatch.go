// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/fetch"
	"github.com/autobrr/tubarr/internal/models"
)

const (
	outcomeDone      = "done"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// dispatchQueued hands queued jobs to the download pool oldest first. It
// stops at the first job the pool has no room for so a later job never
// overtakes an earlier one; the rest wait for the next cycle.
func (s *Service) dispatchQueued(ctx context.Context) error {
	jobs, err := s.store.ListByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.claim(job.ID) {
			continue
		}

		if !s.downloads.TryGo(func() error {
			defer s.release(job.ID)
			s.download(ctx, job)
			return nil
		}) {
			s.release(job.ID)
			break
		}
	}

	return nil
}

func (s *Service) claim(id int64) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id int64) {
	s.inflightMu.Lock()
	delete(s.inflight, id)
	s.inflightMu.Unlock()
}

// InFlight returns the number of downloads currently running.
func (s *Service) InFlight() int {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return len(s.inflight)
}

func (s *Service) download(ctx context.Context, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error().Int64("jobID", job.ID).Interface("panic", r).Msg("scheduler: download panicked")
			s.finish(ctx, job, models.JobStatusFailed, err.Error())
		}
	}()

	// re-check immediately before running; a cancellation may have landed
	// since the queued list was read
	started, err := s.store.TransitionStatus(ctx, job.ID, models.JobStatusRunning, models.JobStatusQueued)
	if err != nil {
		s.report(err, "scheduler: failed to start job %d", job.ID)
		return
	}
	if !started {
		log.Debug().Int64("jobID", job.ID).Msg("scheduler: job no longer queued, skipping")
		return
	}
	s.emitStatus(job.ID, models.JobStatusRunning, "")

	dest := s.destination(job)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		s.finish(ctx, job, models.JobStatusFailed, fmt.Sprintf("create destination %s: %v", dest, err))
		return
	}

	log.Info().Int64("jobID", job.ID).Str("item", job.ExternalItemID).Str("dest", dest).Msg("scheduler: download started")
	start := s.now()

	err = s.fetcher.Fetch(ctx, job.ExternalItemID, dest, func(p fetch.Progress) {
		s.sink.Emit(events.NameDownloadProgress, ProgressPayload{JobID: job.ID, Progress: p})
	})
	if err != nil && ctx.Err() != nil {
		// left running; ResetRunning requeues it on the next start
		log.Warn().Int64("jobID", job.ID).Msg("scheduler: download interrupted by shutdown")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("jobID", job.ID).Dur("elapsed", s.now().Sub(start)).Msg("scheduler: download failed")
		s.finish(ctx, job, models.JobStatusFailed, err.Error())
		return
	}

	log.Info().Int64("jobID", job.ID).Dur("elapsed", s.now().Sub(start)).Msg("scheduler: download finished")
	s.finish(ctx, job, models.JobStatusDone, "")
}

// finish records the outcome unless the job was cancelled mid-fetch.
func (s *Service) finish(ctx context.Context, job *models.Job, status models.JobStatus, errMsg string) {
	// the outcome must land even if shutdown cancelled the fetch
	writeCtx := context.WithoutCancel(ctx)

	changed, err := s.store.FinishRun(writeCtx, job.ID, status, errMsg)
	if err != nil {
		s.report(err, "scheduler: failed to record outcome of job %d", job.ID)
		return
	}
	if !changed {
		log.Info().Int64("jobID", job.ID).Str("outcome", string(status)).Msg("scheduler: job cancelled during download, keeping cancelled")
		s.recorder.DownloadFinished(outcomeCancelled)
		return
	}

	if status == models.JobStatusDone {
		s.recorder.DownloadFinished(outcomeDone)
	} else {
		s.recorder.DownloadFinished(outcomeFailed)
	}
	s.emitStatus(job.ID, status, errMsg)
}
