// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/testdb"
)

type fakeMonitors struct {
	mu      sync.Mutex
	started []int64
	stopped []int64
}

func (f *fakeMonitors) StartSeriesMonitor(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakeMonitors) StopSeriesMonitor(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
}

type countingSink struct {
	mu    sync.Mutex
	names []string
}

func (c *countingSink) Emit(name string, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func newService(t *testing.T) (*Service, *models.JobStore, *fakeMonitors, *countingSink) {
	t.Helper()
	store := models.NewJobStore(testdb.Open(t, "jobs"))
	monitors := &fakeMonitors{}
	sink := &countingSink{}
	return NewService(store, monitors, sink), store, monitors, sink
}

func TestSubmissionNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      Submission
		want    Submission
		wantErr error
	}{
		{
			name: "defaults folder to slug",
			in:   Submission{Query: "  Lofi Hip Hop Radio  "},
			want: Submission{Query: "Lofi Hip Hop Radio", FolderName: "lofi-hip-hop-radio"},
		},
		{
			name: "keeps explicit folder",
			in:   Submission{Query: "x", FolderName: " /music/chill/ "},
			want: Submission{Query: "x", FolderName: "music/chill"},
		},
		{
			name: "keeps series flags as submitted",
			in:   Submission{Query: "x", AlwaysSeries: true},
			want: Submission{Query: "x", AlwaysSeries: true, FolderName: "x"},
		},
		{name: "empty query", in: Submission{Query: "   "}, wantErr: ErrEmptyQuery},
		{name: "negative bound", in: Submission{Query: "x", MinLength: -1}, wantErr: ErrValidation},
		{name: "inverted bounds", in: Submission{Query: "x", MinLength: 10, MaxLength: 5}, wantErr: ErrValidation},
		{name: "folder traversal", in: Submission{Query: "x", FolderName: "../etc"}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.in.Normalize()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	t.Parallel()
	svc, store, monitors, sink := newService(t)

	job, err := svc.Submit(t.Context(), Submission{Query: "lofi", Language: "en", MinLength: 2})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "lofi", job.FolderName)
	assert.Empty(t, monitors.started)
	assert.Equal(t, []string{events.NameJobCreated}, sink.names)

	stored, err := store.GetByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MinLength)
	assert.Equal(t, "en", stored.Language)
}

func TestSubmitRejectsEmptyQuery(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newService(t)

	_, err := svc.Submit(t.Context(), Submission{Query: "\t "})
	require.ErrorIs(t, err, ErrEmptyQuery)
	require.ErrorIs(t, err, ErrValidation)

	counts, err := store.CountByStatus(t.Context())
	require.NoError(t, err)
	assert.Zero(t, counts[models.JobStatusPending])
}

func TestSubmitAlwaysSeriesStartsMonitor(t *testing.T) {
	t.Parallel()
	svc, _, monitors, _ := newService(t)

	job, err := svc.Submit(t.Context(), Submission{Query: "channel", IsSeries: true, AlwaysSeries: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{job.ID}, monitors.started)

	_, err = svc.Submit(t.Context(), Submission{Query: "playlist", IsSeries: true})
	require.NoError(t, err)
	assert.Len(t, monitors.started, 1)

	single, err := svc.Submit(t.Context(), Submission{Query: "track", AlwaysSeries: true})
	require.NoError(t, err)
	assert.False(t, single.IsSeries)
	assert.True(t, single.AlwaysSeries)
	assert.Len(t, monitors.started, 1)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	svc, store, monitors, _ := newService(t)

	parent, err := svc.Submit(t.Context(), Submission{Query: "channel", IsSeries: true, AlwaysSeries: true})
	require.NoError(t, err)

	queued, err := store.Create(t.Context(), &models.JobCreate{
		Query: "channel", Status: models.JobStatusQueued, ExternalItemID: "c1", ParentID: &parent.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(t.Context(), parent.ID, false))
	assert.Equal(t, []int64{parent.ID}, monitors.stopped)

	child, err := store.GetByID(t.Context(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, child.Status)

	// idempotent, and cascade reaches the queued child
	require.NoError(t, svc.Cancel(t.Context(), parent.ID, true))
	child, err = store.GetByID(t.Context(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, child.Status)

	require.ErrorIs(t, svc.Cancel(t.Context(), 9999, false), models.ErrJobNotFound)
}

func TestImportContinuesPastInvalidEntries(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newService(t)

	results, err := svc.Import(t.Context(), []Submission{
		{Query: "first"},
		{Query: ""},
		{Query: "third", IsSeries: true},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NotNil(t, results[0].Job)
	assert.Empty(t, results[0].Error)
	assert.Nil(t, results[1].Job)
	assert.Contains(t, results[1].Error, "query is required")
	assert.True(t, results[2].Job.IsSeries)
}

func TestListAndSummary(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newService(t)

	for _, q := range []string{"a", "b", "c"} {
		_, err := svc.Submit(t.Context(), Submission{Query: q})
		require.NoError(t, err)
	}

	jobs, err := svc.List(t.Context(), models.JobFilter{Status: models.JobStatusPending, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = svc.List(t.Context(), models.JobFilter{Status: "paused"})
	require.ErrorIs(t, err, ErrValidation)

	summary, err := svc.Summary(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, summary[models.JobStatusPending])
}
