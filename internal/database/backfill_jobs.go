package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// Backfill job statuses
const (
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// BackfillJob tracks a resumable multi-day historical import for one user
type BackfillJob struct {
	UserID           string
	TotalDays        int
	DaysSynced       int
	CurrentDayOffset int
	Status           string
	StartedAt        time.Time
	LastSyncAt       *time.Time
	CompletedAt      *time.Time
	ErrorMessage     *string
}

// GetBackfillJob retrieves a user's backfill job. Returns nil if none exists.
func (d *DB) GetBackfillJob(userID string) (*BackfillJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetBackfillJob))
	defer timer.ObserveDuration()

	row := d.db.QueryRow(`
		SELECT user_id, total_days, days_synced, current_day_offset, status,
		       started_at, last_sync_at, completed_at, error_message
		FROM backfill_jobs WHERE user_id = ?
	`, userID)

	job, err := scanBackfillJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetBackfillJob).Inc()
		return nil, fmt.Errorf("failed to get backfill job: %w", err)
	}
	return job, nil
}

// StartBackfillJob creates a backfill job for the user, or returns the existing
// job untouched when one is already in progress (idempotent start). A completed
// or failed job is replaced by the new request.
// The second return value reports whether a new job was created.
func (d *DB) StartBackfillJob(userID string, totalDays int) (*BackfillJob, bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateBackfillJob))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	var startedAt int64
	err := d.db.QueryRow(`
		INSERT INTO backfill_jobs (
			user_id, total_days, days_synced, current_day_offset, status, started_at
		) VALUES (?, ?, 0, 0, 'in_progress', ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_days = excluded.total_days,
			days_synced = 0,
			current_day_offset = 0,
			status = 'in_progress',
			started_at = excluded.started_at,
			last_sync_at = NULL,
			completed_at = NULL,
			error_message = NULL
		WHERE backfill_jobs.status != 'in_progress'
		RETURNING started_at
	`, userID, totalDays, now).Scan(&startedAt)

	created := true
	if err == sql.ErrNoRows {
		// Conflict target was in progress; nothing changed
		created = false
	} else if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateBackfillJob).Inc()
		return nil, false, fmt.Errorf("failed to start backfill job: %w", err)
	}

	job, err := d.GetBackfillJob(userID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, fmt.Errorf("backfill job missing after start for user %s", userID)
	}
	return job, created, nil
}

// ListInProgressBackfillJobs returns all in-progress jobs, oldest last_sync_at
// first so stalled jobs get serviced before recently advanced ones.
func (d *DB) ListInProgressBackfillJobs() ([]*BackfillJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListInProgressJobs))
	defer timer.ObserveDuration()

	rows, err := d.db.Query(`
		SELECT user_id, total_days, days_synced, current_day_offset, status,
		       started_at, last_sync_at, completed_at, error_message
		FROM backfill_jobs
		WHERE status = 'in_progress'
		ORDER BY COALESCE(last_sync_at, 0) ASC
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListInProgressJobs).Inc()
		return nil, fmt.Errorf("failed to list in-progress backfill jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*BackfillJob
	for rows.Next() {
		job, err := scanBackfillJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backfill jobs: %w", err)
	}
	return jobs, nil
}

// AdvanceBackfillJob moves the cursor forward by daysProcessed in a single
// statement, transitioning the job to completed when the horizon is reached.
func (d *DB) AdvanceBackfillJob(userID string, daysProcessed int) (*BackfillJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpAdvanceBackfillJob))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	result, err := d.db.Exec(`
		UPDATE backfill_jobs
		SET days_synced = days_synced + ?,
		    current_day_offset = current_day_offset + ?,
		    last_sync_at = ?,
		    completed_at = CASE WHEN days_synced + ? >= total_days THEN ? ELSE completed_at END,
		    status = CASE WHEN days_synced + ? >= total_days THEN 'completed' ELSE status END
		WHERE user_id = ? AND status = 'in_progress'
	`, daysProcessed, daysProcessed, now, daysProcessed, now, daysProcessed, userID)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAdvanceBackfillJob).Inc()
		return nil, fmt.Errorf("failed to advance backfill job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("no in-progress backfill job for user %s", userID)
	}

	return d.GetBackfillJob(userID)
}

// FailBackfillJob marks a job as terminally failed with a message.
// A failed job requires a manual restart by the user.
func (d *DB) FailBackfillJob(userID, message string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpFailBackfillJob))
	defer timer.ObserveDuration()

	_, err := d.db.Exec(`
		UPDATE backfill_jobs
		SET status = 'error', error_message = ?, last_sync_at = ?
		WHERE user_id = ? AND status = 'in_progress'
	`, message, time.Now().Unix(), userID)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFailBackfillJob).Inc()
		return fmt.Errorf("failed to mark backfill job as errored: %w", err)
	}
	return nil
}

// CountInProgressBackfillJobs reports how many jobs are in progress, for metrics
func (d *DB) CountInProgressBackfillJobs() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM backfill_jobs WHERE status = 'in_progress'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count in-progress backfill jobs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackfillJob(row rowScanner) (*BackfillJob, error) {
	var job BackfillJob
	var startedAt int64
	var lastSyncAt, completedAt *int64

	err := row.Scan(
		&job.UserID, &job.TotalDays, &job.DaysSynced, &job.CurrentDayOffset, &job.Status,
		&startedAt, &lastSyncAt, &completedAt, &job.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	job.StartedAt = time.Unix(startedAt, 0)
	if lastSyncAt != nil {
		t := time.Unix(*lastSyncAt, 0)
		job.LastSyncAt = &t
	}
	if completedAt != nil {
		t := time.Unix(*completedAt, 0)
		job.CompletedAt = &t
	}
	return &job, nil
}
