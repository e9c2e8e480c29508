// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/models"
)

// StartSeriesMonitor launches the discovery loop for an always-series
// parent. It is a no-op when a monitor for the parent is already running.
func (s *Service) StartSeriesMonitor(parentID int64) {
	if s == nil {
		return
	}

	base := s.baseContext()
	if base.Err() != nil {
		return
	}

	s.monitorsMu.Lock()
	defer s.monitorsMu.Unlock()

	if _, running := s.monitors[parentID]; running {
		return
	}

	ctx, cancel := context.WithCancel(base)
	m := &monitor{cancel: cancel, done: make(chan struct{})}
	s.monitors[parentID] = m

	s.monitorWG.Add(1)
	go func() {
		defer s.monitorWG.Done()
		defer close(m.done)
		defer s.forgetMonitor(parentID, m)
		s.monitorSeries(ctx, parentID)
	}()

	log.Info().Int64("parentID", parentID).Dur("interval", s.cfg.SeriesInterval).Msg("scheduler: series monitor started")
}

// StopSeriesMonitor stops the monitor for parentID, if any, and waits for it
// to exit.
func (s *Service) StopSeriesMonitor(parentID int64) {
	if s == nil {
		return
	}

	s.monitorsMu.Lock()
	m, ok := s.monitors[parentID]
	if ok {
		delete(s.monitors, parentID)
	}
	s.monitorsMu.Unlock()

	if !ok {
		return
	}

	m.cancel()
	<-m.done
	log.Info().Int64("parentID", parentID).Msg("scheduler: series monitor stopped")
}

// MonitoredParents returns the ids of parents with a running monitor.
func (s *Service) MonitoredParents() []int64 {
	s.monitorsMu.Lock()
	defer s.monitorsMu.Unlock()

	ids := make([]int64, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) forgetMonitor(parentID int64, m *monitor) {
	s.monitorsMu.Lock()
	defer s.monitorsMu.Unlock()
	if current, ok := s.monitors[parentID]; ok && current == m {
		delete(s.monitors, parentID)
	}
	m.cancel()
}

func (s *Service) stopAllMonitors() {
	s.monitorsMu.Lock()
	for id, m := range s.monitors {
		m.cancel()
		delete(s.monitors, id)
	}
	s.monitorsMu.Unlock()

	s.monitorWG.Wait()
}

func (s *Service) monitorSeries(ctx context.Context, parentID int64) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.seriesPass(ctx, parentID) {
			log.Info().Int64("parentID", parentID).Msg("scheduler: series monitor finished")
			return
		}

		timer.Reset(s.cfg.SeriesInterval)
	}
}

// seriesPass runs one discovery round and reports whether the monitor
// should keep going. Store and provider errors are retried next round.
func (s *Service) seriesPass(ctx context.Context, parentID int64) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("parentID", parentID).Interface("panic", r).Msg("scheduler: series monitor recovered from panic")
			s.emitLog("error", fmt.Sprintf("series monitor for job %d panicked: %v", parentID, r))
			keep = true
		}
	}()

	parent, err := s.store.GetByID(ctx, parentID)
	if errors.Is(err, models.ErrJobNotFound) {
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			s.report(err, "scheduler: series monitor failed to load job %d", parentID)
		}
		return ctx.Err() == nil
	}
	if parent.Status == models.JobStatusCancelled || !parent.AlwaysSeries {
		return false
	}

	items, err := s.candidates(ctx, parent, s.cfg.SeriesLimit)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn().Err(err).Int64("parentID", parentID).Msg("scheduler: series search failed")
		s.emitLog("warning", fmt.Sprintf("series search failed for job %d: %v", parentID, err))
		return true
	}

	inserted, stopped, err := s.fanOut(ctx, parent, items)
	if err != nil {
		if ctx.Err() == nil {
			s.report(err, "scheduler: series monitor failed to insert children of job %d", parentID)
		}
		return ctx.Err() == nil
	}
	if inserted > 0 {
		log.Info().Int64("parentID", parentID).Int("children", inserted).Msg("scheduler: series monitor found new items")
	}

	return !stopped
}
