package database

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// Sync log statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncLogEntry records the outcome of one sync attempt. Append-only.
type SyncLogEntry struct {
	ID        int64
	AttemptID string
	UserID    string
	SyncDate  string
	Status    string
	Message   string
	CreatedAt time.Time
}

// AppendSyncLog records a sync attempt outcome. Entries are never updated or
// deleted by the sync subsystem.
func (d *DB) AppendSyncLog(attemptID, userID, syncDate, status, message string) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpAppendSyncLog))
	defer timer.ObserveDuration()

	result, err := d.db.Exec(`
		INSERT INTO sync_log (attempt_id, user_id, sync_date, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, attemptID, userID, syncDate, status, message, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpAppendSyncLog).Inc()
		return 0, fmt.Errorf("failed to append sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sync log id: %w", err)
	}
	return id, nil
}

// ListSyncLog returns a user's most recent sync log entries, newest first
func (d *DB) ListSyncLog(userID string, limit int) ([]*SyncLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := d.db.Query(`
		SELECT id, attempt_id, user_id, sync_date, status, message, created_at
		FROM sync_log
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	var entries []*SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var createdAt int64
		err := rows.Scan(&e.ID, &e.AttemptID, &e.UserID, &e.SyncDate, &e.Status, &e.Message, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}
