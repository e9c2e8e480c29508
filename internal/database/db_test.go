// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tubarr/internal/dbinterface"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to initialize database")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestNewAppliesMigrations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count)
	require.NoError(t, err)
	assert.Positive(t, count)

	columns := map[string]bool{}
	rows, err := db.conn.Query("SELECT name FROM pragma_table_info('jobs')")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns[name] = true
	}
	require.NoError(t, rows.Err())

	for _, col := range []string{"id", "query", "status", "external_item_id", "parent_id", "folder_name"} {
		assert.True(t, columns[col], "jobs table should have %q column", col)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.conn.QueryRow("SELECT COUNT(*) FROM migrations WHERE filename = '001_jobs.sql'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExternalItemIDIsUnique(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := t.Context()

	_, err := db.ExecContext(ctx, "INSERT INTO jobs (query, external_item_id) VALUES (?, ?)", "a", "item-1")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO jobs (query, external_item_id) VALUES (?, ?)", "b", "item-1")
	require.Error(t, err)

	// NULL item ids never collide
	_, err = db.ExecContext(ctx, "INSERT INTO jobs (query) VALUES (?)", "c")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO jobs (query) VALUES (?)", "d")
	require.NoError(t, err)
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := t.Context()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.ExecContext(ctx, "INSERT INTO jobs (query) VALUES (?)", "q")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&count))
	assert.Equal(t, writers, count)

	total, failed := db.WriterStats()
	assert.EqualValues(t, writers, total)
	assert.Zero(t, failed)
}

func TestWritesAfterCloseFail(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ExecContext(context.Background(), "INSERT INTO jobs (query) VALUES (?)", "late")
	require.ErrorIs(t, err, ErrClosing)
}

func TestIsWriteQuery(t *testing.T) {
	t.Parallel()

	assert.True(t, isWriteQuery("  insert into jobs"))
	assert.True(t, isWriteQuery("\nUPDATE jobs SET"))
	assert.True(t, isWriteQuery("DELETE FROM jobs"))
	assert.False(t, isWriteQuery("SELECT 1"))
	assert.False(t, isWriteQuery(""))
}

func TestMetricsCollector(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := db.ExecContext(t.Context(), "INSERT INTO jobs (query) VALUES (?)", "q")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewMetricsCollector(db))

	count, err := testutil.GatherAndCount(registry,
		"tubarr_db_writes_total",
		"tubarr_db_write_errors_total",
		"tubarr_db_write_queue_depth",
		"tubarr_db_file_size_bytes",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	expected := `
# HELP tubarr_db_writes_total Write statements processed by the single writer
# TYPE tubarr_db_writes_total counter
tubarr_db_writes_total 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "tubarr_db_writes_total"))
}

func TestMigrationFilesSorted(t *testing.T) {
	t.Parallel()

	files, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_jobs.sql", files[0])
	assert.IsNonDecreasing(t, files)
}

func TestBeginTxCommitAndRollback(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := t.Context()

	var beginner dbinterface.TxBeginner = db

	tx, err := beginner.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO jobs (query) VALUES (?)", "kept")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = beginner.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO jobs (query) VALUES (?)", "dropped")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var queries []string
	rows, err := db.QueryContext(ctx, "SELECT query FROM jobs ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var q string
		require.NoError(t, rows.Scan(&q))
		queries = append(queries, q)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"kept"}, queries)
}
