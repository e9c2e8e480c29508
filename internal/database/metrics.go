// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports writer and file statistics at scrape time.
type MetricsCollector struct {
	db *DB

	writes      *prometheus.Desc
	writeErrors *prometheus.Desc
	queueDepth  *prometheus.Desc
	fileSize    *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("tubarr_db_"+name, help, nil, nil)
	}
	return &MetricsCollector{
		db:          db,
		writes:      desc("writes_total", "Write statements processed by the single writer"),
		writeErrors: desc("write_errors_total", "Write statements that returned an error"),
		queueDepth:  desc("write_queue_depth", "Writes waiting for the writer goroutine"),
		fileSize:    desc("file_size_bytes", "Size of the SQLite database file"),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.writes
	ch <- c.writeErrors
	ch <- c.queueDepth
	ch <- c.fileSize
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}

	total, failed := c.db.WriterStats()
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.writeErrors, prometheus.CounterValue, float64(failed))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.db.QueueDepth()))

	// the file may be missing for in-memory test databases
	if info, err := os.Stat(c.db.Path()); err == nil {
		ch <- prometheus.MustNewConstMetric(c.fileSize, prometheus.GaugeValue, float64(info.Size()))
	}
}
