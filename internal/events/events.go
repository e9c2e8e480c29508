// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package events fans scheduler events out to interested subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	NameJobCreated       = "job_created"
	NameJobUpdated       = "job_updated"
	NameDownloadProgress = "download_progress"
	NameLog              = "log"
)

const (
	defaultQueueSize      = 256
	defaultSubscriberSize = 64
)

// Sink receives named events. Emit must never block the caller.
type Sink interface {
	Emit(name string, payload any)
}

type discard struct{}

func (discard) Emit(string, any) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

// JobUpdated is the payload of job_updated. Event carries the new status.
type JobUpdated struct {
	Event string `json:"event"`
	JobID int64  `json:"job_id"`
	Error string `json:"error,omitempty"`
}

type JobCreated struct {
	JobID          int64  `json:"job_id"`
	ParentID       int64  `json:"parent_id"`
	ExternalItemID string `json:"external_item_id"`
	Title          string `json:"title,omitempty"`
}

type LogMessage struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

type Event struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// Hub is a Sink with bounded queues and any number of subscribers.
// Events are dropped rather than delayed when a queue or a subscriber
// buffer is full. download_progress has its own queue so a burst of
// progress never crowds out lifecycle events, and the dispatcher drains
// lifecycle events first.
type Hub struct {
	logger   zerolog.Logger
	queue    chan Event
	progress chan Event

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64

	startOnce sync.Once
	now       func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		queue:    make(chan Event, defaultQueueSize),
		progress: make(chan Event, defaultQueueSize),
		subs:     make(map[uint64]chan Event),
		now:      time.Now,
	}
}

// Start launches the dispatcher. It stops when ctx is done.
func (h *Hub) Start(ctx context.Context) {
	if h == nil {
		return
	}

	h.startOnce.Do(func() {
		go h.dispatchLoop(ctx)
	})
}

func (h *Hub) Emit(name string, payload any) {
	if h == nil {
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	event := Event{
		ID:      id.String(),
		Name:    name,
		Payload: payload,
		Time:    h.now().UTC(),
	}

	queue := h.queue
	if name == NameDownloadProgress {
		queue = h.progress
	}

	select {
	case queue <- event:
	default:
		h.logger.Warn().Str("event", name).Msg("events: queue full, dropping event")
	}
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultSubscriberSize)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.queue:
			h.broadcast(event)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case event := <-h.queue:
			h.broadcast(event)
		case event := <-h.progress:
			h.broadcast(event)
		}
	}
}

func (h *Hub) broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Debug().Uint64("subscriber", id).Str("event", event.Name).Msg("events: subscriber lagging, dropping event")
		}
	}
}
