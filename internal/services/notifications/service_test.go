// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/testdb"
)

type sent struct {
	url     string
	title   string
	message string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) send(_ context.Context, rawURL, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{url: rawURL, title: title, message: message})
	return nil
}

func (r *recorder) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func newTestService(t *testing.T, store *models.JobStore, eventTypes ...string) (*Service, *recorder) {
	t.Helper()

	svc, err := NewService([]string{"logger://"}, eventTypes, store, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, svc)

	rec := &recorder{}
	svc.send = rec.send
	return svc, rec
}

func TestNewServiceWithoutTargetsIsNil(t *testing.T) {
	t.Parallel()

	svc, err := NewService([]string{"", "  "}, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, svc)

	// nil service is inert
	svc.Notify(Event{Type: EventJobDone})
	svc.Start(t.Context(), nil)
	require.Error(t, svc.SendTest(t.Context(), "t", "m"))
}

func TestNewServiceRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewService([]string{"notaservice://nope"}, nil, nil, zerolog.Nop())
	require.Error(t, err)

	_, err = NewService([]string{"logger://"}, []string{"playlist_synced"}, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestFormatEventJobDoneIncludesJobDetails(t *testing.T) {
	t.Parallel()

	store := models.NewJobStore(testdb.Open(t, "notifications"))
	job, err := store.Create(t.Context(), &models.JobCreate{Query: "lofi beats", FolderName: "lofi-beats"})
	require.NoError(t, err)
	_, err = store.Resolve(t.Context(), job.ID, "abc123")
	require.NoError(t, err)

	svc, _ := newTestService(t, store)
	title, message := svc.formatEvent(t.Context(), Event{Type: EventJobDone, JobID: job.ID})

	assert.Equal(t, "Download finished", title)
	assert.Contains(t, message, "Query: lofi beats")
	assert.Contains(t, message, "Item: abc123")
	assert.Contains(t, message, "Folder: lofi-beats")
}

func TestFormatEventJobFailedWithoutStore(t *testing.T) {
	t.Parallel()

	svc := &Service{}
	title, message := svc.formatEvent(t.Context(), Event{Type: EventJobFailed, JobID: 7})
	assert.Equal(t, "Download failed", title)
	assert.Equal(t, "Job: 7\nError: Unknown error", message)

	_, message = svc.formatEvent(t.Context(), Event{Type: EventJobFailed, JobID: 7, ErrorMessage: " HTTP 403 "})
	assert.Contains(t, message, "Error: HTTP 403")

	title, message = svc.formatEvent(t.Context(), Event{Type: EventType("unknown")})
	assert.Empty(t, title)
	assert.Empty(t, message)
}

func TestFromHubEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		want    Event
		ok      bool
	}{
		{
			name:    "done",
			payload: events.JobUpdated{Event: "done", JobID: 3},
			want:    Event{Type: EventJobDone, JobID: 3},
			ok:      true,
		},
		{
			name:    "failed keeps error",
			payload: events.JobUpdated{Event: "failed", JobID: 4, Error: "boom"},
			want:    Event{Type: EventJobFailed, JobID: 4, ErrorMessage: "boom"},
			ok:      true,
		},
		{
			name:    "running ignored",
			payload: events.JobUpdated{Event: "running", JobID: 4},
		},
		{
			name:    "child created",
			payload: events.JobCreated{JobID: 9, ParentID: 2, ExternalItemID: "xyz", Title: "Episode 1"},
			want:    Event{Type: EventSeriesItemFound, JobID: 9, ParentID: 2, ItemID: "xyz", ItemTitle: "Episode 1"},
			ok:      true,
		},
		{
			name:    "top-level job ignored",
			payload: events.JobCreated{JobID: 9},
		},
		{
			name:    "log ignored",
			payload: events.LogMessage{Level: "error", Msg: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := fromHubEvent(events.Event{Payload: tt.payload})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceRelaysHubEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	hub := events.NewHub(zerolog.Nop())
	hub.Start(ctx)

	svc, rec := newTestService(t, nil)
	svc.Start(ctx, hub)

	hub.Emit(events.NameJobUpdated, events.JobUpdated{Event: "running", JobID: 1})
	hub.Emit(events.NameJobUpdated, events.JobUpdated{Event: "failed", JobID: 1, Error: "unavailable"})

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	got := rec.snapshot()[0]
	assert.Equal(t, "logger://", got.url)
	assert.Equal(t, "Download failed", got.title)
	assert.Contains(t, got.message, "unavailable")
}

func TestDispatchHonoursEventFilter(t *testing.T) {
	t.Parallel()

	svc, rec := newTestService(t, nil, "job_failed")

	svc.dispatch(t.Context(), Event{Type: EventJobDone, JobID: 1})
	assert.Empty(t, rec.snapshot())

	svc.dispatch(t.Context(), Event{Type: EventJobFailed, JobID: 1})
	assert.Len(t, rec.snapshot(), 1)
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)
	for range defaultQueueSize + 5 {
		svc.Notify(Event{Type: EventJobDone})
	}
	assert.Len(t, svc.queue, defaultQueueSize)
}

func TestTruncateMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateMessage(" short ", 10))
	long := strings.Repeat("a", 20)
	out := truncateMessage(long, 10)
	assert.Equal(t, 10, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestNormalizeEventTypes(t *testing.T) {
	t.Parallel()

	got, err := NormalizeEventTypes([]string{" series_item_found", "JOB_DONE", "job_done", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"job_done", "series_item_found"}, got)

	got, err = NormalizeEventTypes([]string{" "})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = NormalizeEventTypes([]string{"playlist_synced"})
	require.ErrorContains(t, err, "unknown event type")
}
