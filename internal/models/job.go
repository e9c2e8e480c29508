// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/tubarr/internal/dbinterface"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateItem is returned when another job already owns the external item id.
	ErrDuplicateItem = errors.New("external item already tracked by another job")
	ErrInvalidStatus = errors.New("invalid job status")
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusActive marks a series parent whose fan-out is complete; its
	// children are the unit of work from then on.
	JobStatusActive JobStatus = "active"
)

var allJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusWaiting,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusDone,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusActive,
}

// AllJobStatuses returns every known status in lifecycle order.
func AllJobStatuses() []JobStatus {
	out := make([]JobStatus, len(allJobStatuses))
	copy(out, allJobStatuses)
	return out
}

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsValid() bool {
	for _, known := range allJobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransition reports whether moving from s to next is a legal state change.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStatusCancelled {
		return true
	}

	switch s {
	case JobStatusPending:
		return next == JobStatusWaiting || next == JobStatusQueued || next == JobStatusActive
	case JobStatusWaiting:
		return next == JobStatusQueued || next == JobStatusActive
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusDone || next == JobStatusFailed
	default:
		return false
	}
}

// ParseJobStatus validates a user supplied status string.
func ParseJobStatus(raw string) (JobStatus, error) {
	status := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// Job is a user query (parent) or one concrete discovered item (child).
type Job struct {
	ID             int64     `json:"id"`
	Query          string    `json:"query"`
	Language       string    `json:"language"`
	IsSeries       bool      `json:"isSeries"`
	AlwaysSeries   bool      `json:"alwaysSeries"`
	MinLength      int       `json:"minLength"`
	MaxLength      int       `json:"maxLength"`
	FolderName     string    `json:"folderName"`
	Status         JobStatus `json:"status"`
	ExternalItemID string    `json:"externalItemId,omitempty"`
	ParentID       *int64    `json:"parentId,omitempty"`
	ErrorMessage   string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsSeriesMonitor reports whether the job needs a long-lived series monitor.
func (j *Job) IsSeriesMonitor() bool {
	return j.IsSeries && j.AlwaysSeries
}

// JobCreate holds the columns for a new job row.
type JobCreate struct {
	Query          string
	Language       string
	IsSeries       bool
	AlwaysSeries   bool
	MinLength      int
	MaxLength      int
	FolderName     string
	Status         JobStatus
	ExternalItemID string
	ParentID       *int64
}

// JobUpdate is a partial update; nil fields are left untouched.
type JobUpdate struct {
	Status         *JobStatus
	ExternalItemID *string
	FolderName     *string
	AlwaysSeries   *bool
	ErrorMessage   *string
}

// JobFilter narrows List results.
type JobFilter struct {
	Status   JobStatus
	ParentID *int64
	Limit    int
	Offset   int
}

const jobColumns = `id, query, language, is_series, always_series, min_length, max_length, folder_name,
	status, external_item_id, parent_id, error_message, created_at, updated_at`

type JobStore struct {
	db dbinterface.Querier
}

func NewJobStore(db dbinterface.Querier) *JobStore {
	return &JobStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		status       string
		isSeries     int
		alwaysSeries int
		itemID       sql.NullString
		parentID     sql.NullInt64
	)

	if err := row.Scan(
		&job.ID,
		&job.Query,
		&job.Language,
		&isSeries,
		&alwaysSeries,
		&job.MinLength,
		&job.MaxLength,
		&job.FolderName,
		&status,
		&itemID,
		&parentID,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	job.IsSeries = isSeries == 1
	job.AlwaysSeries = alwaysSeries == 1
	if itemID.Valid {
		job.ExternalItemID = itemID.String
	}
	if parentID.Valid {
		id := parentID.Int64
		job.ParentID = &id
	}

	return &job, nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func createArgs(create *JobCreate) []any {
	status := create.Status
	if status == "" {
		status = JobStatusPending
	}

	return []any{
		create.Query,
		create.Language,
		boolToInt(create.IsSeries),
		boolToInt(create.AlwaysSeries),
		create.MinLength,
		create.MaxLength,
		create.FolderName,
		string(status),
		nullString(create.ExternalItemID),
		nullInt64(create.ParentID),
	}
}

// Create inserts a job and returns the stored row. A clash on the external
// item id yields ErrDuplicateItem.
func (s *JobStore) Create(ctx context.Context, create *JobCreate) (*Job, error) {
	if create == nil {
		return nil, errors.New("job create payload is required")
	}
	if create.Status != "" && !create.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, create.Status)
	}

	query := `
		INSERT INTO jobs (query, language, is_series, always_series, min_length, max_length,
			folder_name, status, external_item_id, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, createArgs(create)...))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateItem
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

// InsertChild inserts a job unless its external item id is already tracked.
// A duplicate is reported as (0, false, nil), never as an error.
func (s *JobStore) InsertChild(ctx context.Context, create *JobCreate) (int64, bool, error) {
	if create == nil || strings.TrimSpace(create.ExternalItemID) == "" {
		return 0, false, errors.New("child job requires an external item id")
	}

	query := `
		INSERT INTO jobs (query, language, is_series, always_series, min_length, max_length,
			folder_name, status, external_item_id, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (external_item_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, createArgs(create)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, false, nil
		}
		if isCheckConstraintError(err) {
			return 0, false, fmt.Errorf("%w: %q", ErrInvalidStatus, create.Status)
		}
		return 0, false, fmt.Errorf("failed to insert child job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, true, fmt.Errorf("failed to get inserted job id: %w", err)
	}

	return id, true, nil
}

func (s *JobStore) GetByID(ctx context.Context, id int64) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (s *JobStore) ListByStatus(ctx context.Context, status JobStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY id ASC`
	return s.queryJobs(ctx, query, string(status))
}

// ListResolvable returns parents awaiting resolution: pending, or waiting for
// candidates that a previous pass filtered out. Oldest first.
func (s *JobStore) ListResolvable(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status IN ('pending', 'waiting') AND external_item_id IS NULL
		ORDER BY id ASC`
	return s.queryJobs(ctx, query)
}

// ListSeriesMonitors returns always-series parents that have not been cancelled.
func (s *JobStore) ListSeriesMonitors(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE is_series = 1 AND always_series = 1 AND parent_id IS NULL AND status != 'cancelled'
		ORDER BY id ASC`
	return s.queryJobs(ctx, query)
}

// List returns jobs newest first, narrowed by filter.
func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]*Job, error) {
	var (
		where []string
		args  []any
	)

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	return s.queryJobs(ctx, query, args...)
}

// UpdateStatus sets the status unconditionally.
func (s *JobStore) UpdateStatus(ctx context.Context, id int64, status JobStatus) error {
	return s.UpdateFields(ctx, id, JobUpdate{Status: &status})
}

// UpdateFields applies a partial update and touches updated_at.
func (s *JobStore) UpdateFields(ctx context.Context, id int64, update JobUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any

	if update.Status != nil {
		if !update.Status.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, *update.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.ExternalItemID != nil {
		sets = append(sets, "external_item_id = ?")
		args = append(args, nullString(*update.ExternalItemID))
	}
	if update.FolderName != nil {
		sets = append(sets, "folder_name = ?")
		args = append(args, *update.FolderName)
	}
	if update.AlwaysSeries != nil {
		sets = append(sets, "always_series = ?")
		args = append(args, boolToInt(*update.AlwaysSeries))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	args = append(args, id)
	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateItem
		}
		return fmt.Errorf("failed to update job: %w", err)
	}

	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func statusPlaceholders(statuses []JobStatus) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

// TransitionStatus moves a job to `to` only while it is in one of `from`.
// It is the compare-and-set every scheduler transition goes through, so a
// concurrent cancellation is never overwritten. The bool reports whether the
// row changed.
func (s *JobStore) TransitionStatus(ctx context.Context, id int64, to JobStatus, from ...JobStatus) (bool, error) {
	return s.transition(ctx, id, to, "", from)
}

// FinishRun records the terminal outcome of a running job. Jobs cancelled
// while their fetch was in flight keep their cancelled status.
func (s *JobStore) FinishRun(ctx context.Context, id int64, to JobStatus, errMsg string) (bool, error) {
	if to != JobStatusDone && to != JobStatusFailed {
		return false, fmt.Errorf("%w: run cannot finish as %q", ErrInvalidStatus, to)
	}
	return s.transition(ctx, id, to, errMsg, []JobStatus{JobStatusRunning})
}

func (s *JobStore) transition(ctx context.Context, id int64, to JobStatus, errMsg string, from []JobStatus) (bool, error) {
	if !to.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if len(from) == 0 {
		return false, errors.New("transition requires at least one source status")
	}

	marks, fromArgs := statusPlaceholders(from)
	query := `UPDATE jobs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (` + marks + `)`

	args := append([]any{string(to), errMsg, id}, fromArgs...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job %d to %s: %w", id, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Resolve binds an unresolved pending/waiting job to an external item and
// queues it. Returns ErrDuplicateItem when another job owns the item.
func (s *JobStore) Resolve(ctx context.Context, id int64, externalItemID string) (bool, error) {
	if strings.TrimSpace(externalItemID) == "" {
		return false, errors.New("external item id is required")
	}

	query := `UPDATE jobs SET external_item_id = ?, status = 'queued', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'waiting') AND external_item_id IS NULL`

	res, err := s.db.ExecContext(ctx, query, externalItemID, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, ErrDuplicateItem
		}
		return false, fmt.Errorf("failed to resolve job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Cancel marks the job cancelled regardless of its current status.
func (s *JobStore) Cancel(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, JobStatusCancelled)
}

// CancelChildren cancels children of parentID that have not started running.
func (s *JobStore) CancelChildren(ctx context.Context, parentID int64) (int64, error) {
	query := `UPDATE jobs SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE parent_id = ? AND status IN ('pending', 'waiting', 'queued')`

	res, err := s.db.ExecContext(ctx, query, parentID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel child jobs: %w", err)
	}

	return res.RowsAffected()
}

// ResetRunning requeues jobs left running by an unclean shutdown.
func (s *JobStore) ResetRunning(ctx context.Context) (int64, error) {
	query := `UPDATE jobs SET status = 'queued', updated_at = CURRENT_TIMESTAMP WHERE status = 'running'`

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}

	return res.RowsAffected()
}

// CountByStatus returns the number of jobs per status. Every known status is present.
func (s *JobStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int, len(allJobStatuses))
	for _, st := range allJobStatuses {
		counts[st] = 0
	}

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[JobStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}

	return counts, nil
}
