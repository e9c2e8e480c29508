// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/database"
	"github.com/autobrr/tubarr/internal/models"
)

type Manager struct {
	registry     *prometheus.Registry
	jobCollector *JobCollector
	scheduler    *SchedulerMetrics
}

// NewManager builds a registry with runtime, job, scheduler and database
// metrics. store and db may be nil.
func NewManager(store *models.JobStore, db *database.DB) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	jobCollector := NewJobCollector(store)
	registry.MustRegister(jobCollector)

	scheduler := NewSchedulerMetrics()
	registry.MustRegister(scheduler)

	if db != nil {
		registry.MustRegister(database.NewMetricsCollector(db))
	}

	log.Info().Msg("Metrics manager initialized with job and scheduler collectors")

	return &Manager{
		registry:     registry,
		jobCollector: jobCollector,
		scheduler:    scheduler,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Scheduler returns the counters the scheduler records into.
func (m *Manager) Scheduler() *SchedulerMetrics {
	return m.scheduler
}
