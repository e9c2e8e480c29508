// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tubarr/internal/models"
)

const collectTimeout = 10 * time.Second

// JobCollector exposes the number of jobs in each status, read from the
// store on every scrape.
type JobCollector struct {
	store *models.JobStore

	jobsDesc *prometheus.Desc
}

func NewJobCollector(store *models.JobStore) *JobCollector {
	return &JobCollector{
		store: store,
		jobsDesc: prometheus.NewDesc(
			"tubarr_jobs",
			"Number of jobs by status",
			[]string{"status"},
			nil,
		),
	}
}

func (c *JobCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsDesc
}

func (c *JobCollector) Collect(ch chan<- prometheus.Metric) {
	if c.store == nil {
		log.Debug().Msg("JobStore is nil, skipping job metrics")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count jobs for metrics")
		return
	}

	for _, status := range models.AllJobStatuses() {
		ch <- prometheus.MustNewConstMetric(
			c.jobsDesc,
			prometheus.GaugeValue,
			float64(counts[status]),
			string(status),
		)
	}
}

// SchedulerMetrics counts scheduler activity. It satisfies scheduler.Recorder.
type SchedulerMetrics struct {
	cycles           prometheus.Counter
	cycleErrors      prometheus.Counter
	downloads        *prometheus.CounterVec
	childrenInserted prometheus.Counter
}

func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubarr_scheduler_cycles_total",
			Help: "Total number of scheduler poll cycles",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubarr_scheduler_cycle_errors_total",
			Help: "Total number of scheduler poll cycles that hit an error",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubarr_downloads_total",
			Help: "Total number of finished downloads by outcome",
		}, []string{"outcome"}),
		childrenInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubarr_children_inserted_total",
			Help: "Total number of child jobs discovered from series queries",
		}),
	}
}

func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cycles.Describe(ch)
	m.cycleErrors.Describe(ch)
	m.downloads.Describe(ch)
	m.childrenInserted.Describe(ch)
}

func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cycles.Collect(ch)
	m.cycleErrors.Collect(ch)
	m.downloads.Collect(ch)
	m.childrenInserted.Collect(ch)
}

func (m *SchedulerMetrics) CycleCompleted(failed bool) {
	m.cycles.Inc()
	if failed {
		m.cycleErrors.Inc()
	}
}

func (m *SchedulerMetrics) DownloadFinished(outcome string) {
	m.downloads.WithLabelValues(outcome).Inc()
}

func (m *SchedulerMetrics) ChildrenInserted(n int) {
	if n > 0 {
		m.childrenInserted.Add(float64(n))
	}
}
