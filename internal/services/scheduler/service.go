// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler drives jobs from submission to a terminal status: it
// resolves queries into items, dispatches downloads and keeps always-series
// parents discovering new items.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/fetch"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/search"
)

// Config controls poll cadence, search limits and dispatch concurrency.
type Config struct {
	PollInterval           time.Duration
	SeriesInterval         time.Duration
	ResolveLimit           int
	SeriesLimit            int
	DownloadRoot           string
	DefaultFolder          string
	MaxConcurrentDownloads int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:           5 * time.Second,
		SeriesInterval:         5 * time.Minute,
		ResolveLimit:           10,
		SeriesLimit:            20,
		DownloadRoot:           "downloads",
		DefaultFolder:          "misc",
		MaxConcurrentDownloads: 1,
	}
}

// Recorder receives scheduler counters. metrics.SchedulerMetrics implements it.
type Recorder interface {
	CycleCompleted(failed bool)
	DownloadFinished(outcome string)
	ChildrenInserted(n int)
}

type nopRecorder struct{}

func (nopRecorder) CycleCompleted(bool)     {}
func (nopRecorder) DownloadFinished(string) {}
func (nopRecorder) ChildrenInserted(int)    {}

// ProgressPayload is the download_progress event body: the fetcher's
// progress report tagged with the job it belongs to.
type ProgressPayload struct {
	JobID int64 `json:"job_id"`
	fetch.Progress
}

type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Service struct {
	cfg      Config
	store    *models.JobStore
	searcher search.Searcher
	fetcher  fetch.Fetcher
	sink     events.Sink
	recorder Recorder

	ctxMu   sync.RWMutex
	baseCtx context.Context
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup

	cycleMu sync.Mutex

	downloads  errgroup.Group
	inflightMu sync.Mutex
	inflight   map[int64]struct{}

	monitorsMu sync.Mutex
	monitors   map[int64]*monitor
	monitorWG  sync.WaitGroup

	now func() time.Time
}

func NewService(cfg Config, store *models.JobStore, searcher search.Searcher, fetcher fetch.Fetcher, sink events.Sink) *Service {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.SeriesInterval <= 0 {
		cfg.SeriesInterval = defaults.SeriesInterval
	}
	if cfg.ResolveLimit <= 0 {
		cfg.ResolveLimit = defaults.ResolveLimit
	}
	if cfg.SeriesLimit <= 0 {
		cfg.SeriesLimit = defaults.SeriesLimit
	}
	if strings.TrimSpace(cfg.DownloadRoot) == "" {
		cfg.DownloadRoot = defaults.DownloadRoot
	}
	if strings.TrimSpace(cfg.DefaultFolder) == "" {
		cfg.DefaultFolder = defaults.DefaultFolder
	}
	if cfg.MaxConcurrentDownloads <= 0 {
		cfg.MaxConcurrentDownloads = defaults.MaxConcurrentDownloads
	}
	if sink == nil {
		sink = events.Discard
	}

	svc := &Service{
		cfg:      cfg,
		store:    store,
		searcher: searcher,
		fetcher:  fetcher,
		sink:     sink,
		recorder: nopRecorder{},
		inflight: make(map[int64]struct{}),
		monitors: make(map[int64]*monitor),
		now:      time.Now,
	}
	svc.downloads.SetLimit(cfg.MaxConcurrentDownloads)
	return svc
}

func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

func (s *Service) Config() Config {
	return s.cfg
}

// Start requeues jobs interrupted by a previous shutdown, restores series
// monitors and launches the poll loop. The loop runs until ctx is done or
// Stop is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.setBaseContext(ctx, cancel)

	reset, err := s.store.ResetRunning(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	if reset > 0 {
		log.Info().Int64("count", reset).Msg("scheduler: requeued jobs interrupted by shutdown")
	}

	parents, err := s.store.ListSeriesMonitors(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("restore series monitors: %w", err)
	}
	for _, parent := range parents {
		s.StartSeriesMonitor(parent.ID)
	}

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.RunCycle(ctx)
		s.loop(ctx)
	}()

	log.Info().
		Dur("pollInterval", s.cfg.PollInterval).
		Dur("seriesInterval", s.cfg.SeriesInterval).
		Int("monitors", len(parents)).
		Int("maxConcurrentDownloads", s.cfg.MaxConcurrentDownloads).
		Msg("scheduler: started")

	return nil
}

// Stop cancels the poll loop and series monitors and waits for in-flight
// downloads to return.
func (s *Service) Stop() {
	if s == nil {
		return
	}

	s.ctxMu.RLock()
	cancel := s.cancel
	s.ctxMu.RUnlock()
	if cancel != nil {
		cancel()
	}

	s.loopWG.Wait()
	s.stopAllMonitors()
	_ = s.downloads.Wait()
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

func (s *Service) setBaseContext(ctx context.Context, cancel context.CancelFunc) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	s.baseCtx = ctx
	s.cancel = cancel
}

func (s *Service) baseContext() context.Context {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// RunCycle performs one resolution pass followed by one dispatch pass.
// Downloads started by the dispatch pass keep running after it returns.
func (s *Service) RunCycle(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	failed := false
	if err := s.guard("resolution", func() error { return s.resolvePending(ctx) }); err != nil {
		failed = true
	}
	if err := s.guard("dispatch", func() error { return s.dispatchQueued(ctx) }); err != nil {
		failed = true
	}

	s.recorder.CycleCompleted(failed)
}

// WaitIdle blocks until every dispatched download has finished.
func (s *Service) WaitIdle() {
	_ = s.downloads.Wait()
}

// guard runs one pass, turning panics and errors into log events so the
// poll loop never dies.
func (s *Service) guard(pass string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s pass: %v", pass, r)
			log.Error().Str("pass", pass).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("scheduler: recovered from panic")
			s.emitLog("error", err.Error())
		}
	}()

	if err = fn(); err != nil && !errors.Is(err, context.Canceled) {
		s.report(err, "scheduler: %s pass failed", pass)
	}
	return err
}

func (s *Service) report(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Error().Err(err).Msg(msg)
	s.emitLog("error", fmt.Sprintf("%s: %v", msg, err))
}

func (s *Service) emitLog(level, msg string) {
	s.sink.Emit(events.NameLog, events.LogMessage{Level: level, Msg: msg})
}

func (s *Service) emitStatus(jobID int64, status models.JobStatus, errMsg string) {
	s.sink.Emit(events.NameJobUpdated, events.JobUpdated{
		Event: string(status),
		JobID: jobID,
		Error: errMsg,
	})
}

// destination returns root/folder, falling back to the default folder.
func (s *Service) destination(job *models.Job) string {
	folder := strings.TrimSpace(job.FolderName)
	if folder == "" {
		folder = s.cfg.DefaultFolder
	}
	return filepath.Join(s.cfg.DownloadRoot, filepath.Clean(string(filepath.Separator)+folder))
}
