// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sse relays hub events to browsers as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmaxmax/go-sse"

	"github.com/autobrr/tubarr/internal/events"
)

const (
	// TopicJobs carries job_created, job_updated and log events.
	TopicJobs = "jobs"
	// TopicProgress carries download_progress events, which are chatty.
	TopicProgress = "progress"

	replayCount = 32
)

// Subscriber is the part of events.Hub the relay listens on.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

type envelope struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

type Relay struct {
	server  *sse.Server
	closing atomic.Bool

	startOnce sync.Once
	done      chan struct{}
}

func NewRelay() *Relay {
	var replayer sse.Replayer
	if finite, err := sse.NewFiniteReplayer(replayCount, true); err != nil {
		log.Warn().Err(err).Msg("Failed to create SSE replayer; reconnecting clients may miss events")
	} else {
		replayer = finite
	}

	r := &Relay{
		server: &sse.Server{
			Provider: &sse.Joe{Replayer: replayer},
		},
		done: make(chan struct{}),
	}
	r.server.OnSession = r.onSession
	return r
}

// Start forwards hub events until ctx is done.
func (r *Relay) Start(ctx context.Context, hub Subscriber) {
	r.startOnce.Do(func() {
		ch, unsubscribe := hub.Subscribe()
		go func() {
			defer close(r.done)
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					r.publish(ev)
				}
			}
		}()
	})
}

func topicFor(name string) string {
	if name == events.NameDownloadProgress {
		return TopicProgress
	}
	return TopicJobs
}

func (r *Relay) publish(ev events.Event) {
	if r.closing.Load() {
		return
	}

	encoded, err := json.Marshal(envelope{ID: ev.ID, Time: ev.Time, Payload: ev.Payload})
	if err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("Failed to marshal SSE payload")
		return
	}

	message := &sse.Message{Type: sse.Type(ev.Name)}
	message.AppendData(string(encoded))

	if err := r.server.Publish(message, topicFor(ev.Name)); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		log.Error().Err(err).Str("event", ev.Name).Msg("Failed to publish SSE message")
	}
}

// onSession subscribes every client to job events, and to progress events
// unless it asked for ?progress=false.
func (r *Relay) onSession(w http.ResponseWriter, req *http.Request) ([]string, bool) {
	if r.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return nil, false
	}

	topics := []string{TopicJobs}
	if raw := req.URL.Query().Get("progress"); raw == "" {
		topics = append(topics, TopicProgress)
	} else if wantProgress, err := strconv.ParseBool(raw); err != nil {
		http.Error(w, "invalid progress parameter", http.StatusBadRequest)
		return nil, false
	} else if wantProgress {
		topics = append(topics, TopicProgress)
	}

	return topics, true
}

// ServeHTTP implements GET /api/events. It blocks until the client leaves.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return
	}

	// streams outlive the API server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	r.server.ServeHTTP(w, req)
}

// Shutdown disconnects every client.
func (r *Relay) Shutdown(ctx context.Context) error {
	if r == nil || !r.closing.CompareAndSwap(false, true) {
		return nil
	}

	if err := r.server.Shutdown(ctx); err != nil &&
		!errors.Is(err, sse.ErrProviderClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
