// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/testdb"
)

func TestNewManager_NilDependencies(t *testing.T) {
	t.Parallel()

	manager := NewManager(nil, nil)

	assert.NotNil(t, manager.registry)
	assert.NotNil(t, manager.jobCollector)
	assert.NotNil(t, manager.Scheduler())
}

func TestManager_GetRegistry(t *testing.T) {
	t.Parallel()

	registry := NewManager(nil, nil).GetRegistry()
	assert.IsType(t, &prometheus.Registry{}, registry)

	families, err := registry.Gather()
	require.NoError(t, err)

	var foundGo, foundProcess bool
	for _, mf := range families {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") {
			foundGo = true
		}
		if strings.HasPrefix(name, "process_") {
			foundProcess = true
		}
	}

	assert.True(t, foundGo, "go_* metrics should be registered")
	if runtime.GOOS != "darwin" {
		assert.True(t, foundProcess, "process_* metrics should be registered")
	}
}

func TestManager_RegistryIsolation(t *testing.T) {
	t.Parallel()

	m1 := NewManager(nil, nil)
	m2 := NewManager(nil, nil)

	assert.NotSame(t, m1.registry, m2.registry)
	assert.NotSame(t, m1.scheduler, m2.scheduler)
}

func TestJobCollector_CountsByStatus(t *testing.T) {
	t.Parallel()

	db := testdb.Open(t, "metrics")
	store := models.NewJobStore(db)
	ctx := t.Context()

	for _, q := range []string{"one", "two"} {
		_, err := store.Create(ctx, &models.JobCreate{Query: q, FolderName: q})
		require.NoError(t, err)
	}
	queued, err := store.Create(ctx, &models.JobCreate{Query: "three", FolderName: "three"})
	require.NoError(t, err)
	_, err = store.Resolve(ctx, queued.ID, "abc123")
	require.NoError(t, err)

	manager := NewManager(store, db)

	expected := `
# HELP tubarr_jobs Number of jobs by status
# TYPE tubarr_jobs gauge
tubarr_jobs{status="active"} 0
tubarr_jobs{status="cancelled"} 0
tubarr_jobs{status="done"} 0
tubarr_jobs{status="failed"} 0
tubarr_jobs{status="pending"} 2
tubarr_jobs{status="queued"} 1
tubarr_jobs{status="running"} 0
tubarr_jobs{status="waiting"} 0
`
	require.NoError(t, testutil.GatherAndCompare(manager.GetRegistry(), strings.NewReader(expected), "tubarr_jobs"))
}

func TestSchedulerMetrics_Recorder(t *testing.T) {
	t.Parallel()

	m := NewSchedulerMetrics()

	m.CycleCompleted(false)
	m.CycleCompleted(true)
	m.DownloadFinished("done")
	m.DownloadFinished("done")
	m.DownloadFinished("failed")
	m.ChildrenInserted(3)
	m.ChildrenInserted(0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.cycles), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cycleErrors), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.downloads.WithLabelValues("done")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.downloads.WithLabelValues("failed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.childrenInserted), 0)
}

func TestManager_MetricsCanBeScraped(t *testing.T) {
	t.Parallel()

	assert.Positive(t, testutil.CollectAndCount(NewManager(nil, nil).GetRegistry()))
}
