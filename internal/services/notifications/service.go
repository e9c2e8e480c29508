// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
)

const (
	defaultQueueSize = 100
	defaultWorkers   = 2
)

type Notifier interface {
	Notify(event Event)
}

type Event struct {
	Type         EventType
	JobID        int64
	ParentID     int64
	ItemID       string
	ItemTitle    string
	ErrorMessage string
}

// Subscriber is the part of events.Hub the service listens on.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

type sendFunc func(ctx context.Context, rawURL, title, message string) error

type Service struct {
	urls       []string
	eventTypes []string
	store      *models.JobStore
	logger     zerolog.Logger
	queue      chan Event
	startOnce  sync.Once
	send       sendFunc
}

// NewService returns nil when no target URLs are configured; every method
// is safe on a nil Service. eventTypes limits what is sent, empty means all.
func NewService(urls, eventTypes []string, store *models.JobStore, logger zerolog.Logger) (*Service, error) {
	targets := make([]string, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := ValidateURL(raw); err != nil {
			return nil, fmt.Errorf("invalid notification url: %w", err)
		}
		targets = append(targets, raw)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	normalized, err := NormalizeEventTypes(eventTypes)
	if err != nil {
		return nil, err
	}

	return &Service{
		urls:       targets,
		eventTypes: normalized,
		store:      store,
		logger:     logger,
		queue:      make(chan Event, defaultQueueSize),
		send:       sendShoutrrr,
	}, nil
}

func ValidateURL(rawURL string) error {
	_, err := router.New(nil, rawURL)
	return err
}

// Start launches the workers and, when hub is non-nil, turns finished
// downloads and discovered series items into notifications.
func (s *Service) Start(ctx context.Context, hub Subscriber) {
	if s == nil {
		return
	}

	s.startOnce.Do(func() {
		for range defaultWorkers {
			go s.worker(ctx)
		}
		if hub != nil {
			ch, unsubscribe := hub.Subscribe()
			go s.listen(ctx, ch, unsubscribe)
		}
	})
}

func (s *Service) listen(ctx context.Context, ch <-chan events.Event, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if n, ok := fromHubEvent(ev); ok {
				s.Notify(n)
			}
		}
	}
}

func fromHubEvent(ev events.Event) (Event, bool) {
	switch p := ev.Payload.(type) {
	case events.JobUpdated:
		switch p.Event {
		case string(models.JobStatusDone):
			return Event{Type: EventJobDone, JobID: p.JobID}, true
		case string(models.JobStatusFailed):
			return Event{Type: EventJobFailed, JobID: p.JobID, ErrorMessage: p.Error}, true
		}
	case events.JobCreated:
		if p.ParentID > 0 {
			return Event{
				Type:      EventSeriesItemFound,
				JobID:     p.JobID,
				ParentID:  p.ParentID,
				ItemID:    p.ExternalItemID,
				ItemTitle: p.Title,
			}, true
		}
	}
	return Event{}, false
}

func (s *Service) Notify(event Event) {
	if s == nil {
		return
	}

	select {
	case s.queue <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Int64("jobID", event.JobID).Msg("notifications: queue full, dropping event")
	}
}

// SendTest sends a message to every configured target.
func (s *Service) SendTest(ctx context.Context, title, message string) error {
	if s == nil {
		return errors.New("no notification targets configured")
	}

	var errs []error
	for _, target := range s.urls {
		if err := s.send(ctx, target, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			s.dispatch(ctx, event)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, event Event) {
	if !allowsEvent(s.eventTypes, event.Type) {
		return
	}

	title, message := s.formatEvent(ctx, event)
	if strings.TrimSpace(message) == "" {
		return
	}

	for _, target := range s.urls {
		if err := s.send(ctx, target, title, message); err != nil {
			s.logger.Error().Err(err).Str("event", string(event.Type)).Int64("jobID", event.JobID).Msg("notifications: send failed")
		}
	}
}

func sendShoutrrr(_ context.Context, rawURL, title, message string) error {
	sender, err := router.New(nil, rawURL)
	if err != nil {
		return err
	}

	params := types.Params{}
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		params.SetTitle(truncateMessage(trimmed, maxTitleLength))
	}

	results := sender.Send(truncateMessage(message, maxMessageLength), &params)
	var errs []error
	for _, sendErr := range results {
		if sendErr != nil {
			errs = append(errs, sendErr)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) formatEvent(ctx context.Context, event Event) (string, string) {
	job := s.lookupJob(ctx, event.JobID)

	switch event.Type {
	case EventJobDone:
		lines := []string{formatLine("Job", fmt.Sprintf("%d", event.JobID))}
		if job != nil {
			lines = append(lines,
				formatLine("Query", job.Query),
				formatLine("Item", job.ExternalItemID),
				formatLine("Folder", job.FolderName),
			)
		}
		return event.Type.Title(), buildMessage(lines)
	case EventJobFailed:
		lines := []string{formatLine("Job", fmt.Sprintf("%d", event.JobID))}
		if job != nil {
			lines = append(lines,
				formatLine("Query", job.Query),
				formatLine("Item", job.ExternalItemID),
			)
		}
		lines = append(lines, formatLine("Error", formatErrorMessage(event.ErrorMessage)))
		return event.Type.Title(), buildMessage(lines)
	case EventSeriesItemFound:
		lines := []string{
			formatLine("Series job", fmt.Sprintf("%d", event.ParentID)),
			formatLine("Title", event.ItemTitle),
			formatLine("Item", event.ItemID),
		}
		if job != nil {
			lines = append(lines, formatLine("Query", job.Query))
		}
		return event.Type.Title(), buildMessage(lines)
	default:
		return "", ""
	}
}

func (s *Service) lookupJob(ctx context.Context, id int64) *models.Job {
	if s.store == nil || id <= 0 {
		return nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Debug().Err(err).Int64("jobID", id).Msg("notifications: job lookup failed")
		return nil
	}
	return job
}

func allowsEvent(eventTypes []string, eventType EventType) bool {
	if len(eventTypes) == 0 {
		return true
	}

	return slices.Contains(eventTypes, string(eventType))
}

func formatLine(label, value string) string {
	trimmedLabel := strings.TrimSpace(label)
	trimmedValue := strings.TrimSpace(value)
	if trimmedLabel == "" || trimmedValue == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", trimmedLabel, trimmedValue)
}

func buildMessage(lines []string) string {
	payload := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			payload = append(payload, trimmed)
		}
	}
	return strings.Join(payload, "\n")
}

const (
	maxMessageLength = 420
	maxTitleLength   = 80
)

func truncateMessage(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func formatErrorMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "Unknown error"
	}
	return trimmed
}
