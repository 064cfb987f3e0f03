package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/metrics"
)

// DateFormat is the calendar-date layout used to partition log tables
const DateFormat = "2006-01-02"

// DailyLog holds one user's activity and body measurements for one date.
// Nil fields were never reported by the provider.
type DailyLog struct {
	UserID      string
	Date        string
	Steps       *int64
	CaloriesOut *int64
	WeightKg    *float64
	BodyFatPct  *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SleepLog holds one user's sleep record for one date
type SleepLog struct {
	UserID          string
	Date            string
	DurationMinutes *int64
	Efficiency      *int64
	MinutesDeep     *int64
	MinutesLight    *int64
	MinutesREM      *int64
	MinutesAwake    *int64
	StartTime       *time.Time
	EndTime         *time.Time
	Raw             json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertDailyLog inserts or merges a daily log row keyed on (user, date).
// Nil fields leave any previously stored value untouched; non-nil fields
// overwrite, including explicit zeros reported by the provider.
func (d *DB) UpsertDailyLog(l *DailyLog) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertDailyLog))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	_, err := d.db.Exec(`
		INSERT INTO daily_logs (
			user_id, log_date, steps, calories_out, weight_kg, body_fat_pct,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, log_date) DO UPDATE SET
			steps = COALESCE(excluded.steps, daily_logs.steps),
			calories_out = COALESCE(excluded.calories_out, daily_logs.calories_out),
			weight_kg = COALESCE(excluded.weight_kg, daily_logs.weight_kg),
			body_fat_pct = COALESCE(excluded.body_fat_pct, daily_logs.body_fat_pct),
			updated_at = excluded.updated_at
	`, l.UserID, l.Date, l.Steps, l.CaloriesOut, l.WeightKg, l.BodyFatPct, now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertDailyLog).Inc()
		return fmt.Errorf("failed to upsert daily log: %w", err)
	}
	return nil
}

// GetDailyLog retrieves one user's log for one date. Returns nil if absent.
func (d *DB) GetDailyLog(userID, date string) (*DailyLog, error) {
	var l DailyLog
	var createdAt, updatedAt int64

	err := d.db.QueryRow(`
		SELECT user_id, log_date, steps, calories_out, weight_kg, body_fat_pct,
		       created_at, updated_at
		FROM daily_logs WHERE user_id = ? AND log_date = ?
	`, userID, date).Scan(
		&l.UserID, &l.Date, &l.Steps, &l.CaloriesOut, &l.WeightKg, &l.BodyFatPct,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily log: %w", err)
	}

	l.CreatedAt = time.Unix(createdAt, 0)
	l.UpdatedAt = time.Unix(updatedAt, 0)
	return &l, nil
}

// CountDailyLogs returns the number of daily log rows for a user
func (d *DB) CountDailyLogs(userID string) (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM daily_logs WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily logs: %w", err)
	}
	return count, nil
}

// UpsertSleepLog inserts or replaces a sleep log row keyed on (user, date)
func (d *DB) UpsertSleepLog(l *SleepLog) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertSleepLog))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	var startTime, endTime *int64
	if l.StartTime != nil {
		t := l.StartTime.Unix()
		startTime = &t
	}
	if l.EndTime != nil {
		t := l.EndTime.Unix()
		endTime = &t
	}

	var raw *string
	if len(l.Raw) > 0 {
		s := string(l.Raw)
		raw = &s
	}

	_, err := d.db.Exec(`
		INSERT INTO sleep_logs (
			user_id, sleep_date, duration_minutes, efficiency,
			minutes_deep, minutes_light, minutes_rem, minutes_awake,
			start_time, end_time, raw_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, sleep_date) DO UPDATE SET
			duration_minutes = excluded.duration_minutes,
			efficiency = excluded.efficiency,
			minutes_deep = excluded.minutes_deep,
			minutes_light = excluded.minutes_light,
			minutes_rem = excluded.minutes_rem,
			minutes_awake = excluded.minutes_awake,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			raw_json = excluded.raw_json,
			updated_at = excluded.updated_at
	`, l.UserID, l.Date, l.DurationMinutes, l.Efficiency,
		l.MinutesDeep, l.MinutesLight, l.MinutesREM, l.MinutesAwake,
		startTime, endTime, raw, now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertSleepLog).Inc()
		return fmt.Errorf("failed to upsert sleep log: %w", err)
	}
	return nil
}

// GetSleepLog retrieves one user's sleep log for one date. Returns nil if absent.
func (d *DB) GetSleepLog(userID, date string) (*SleepLog, error) {
	var l SleepLog
	var startTime, endTime *int64
	var raw *string
	var createdAt, updatedAt int64

	err := d.db.QueryRow(`
		SELECT user_id, sleep_date, duration_minutes, efficiency,
		       minutes_deep, minutes_light, minutes_rem, minutes_awake,
		       start_time, end_time, raw_json, created_at, updated_at
		FROM sleep_logs WHERE user_id = ? AND sleep_date = ?
	`, userID, date).Scan(
		&l.UserID, &l.Date, &l.DurationMinutes, &l.Efficiency,
		&l.MinutesDeep, &l.MinutesLight, &l.MinutesREM, &l.MinutesAwake,
		&startTime, &endTime, &raw, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sleep log: %w", err)
	}

	if startTime != nil {
		t := time.Unix(*startTime, 0)
		l.StartTime = &t
	}
	if endTime != nil {
		t := time.Unix(*endTime, 0)
		l.EndTime = &t
	}
	if raw != nil {
		l.Raw = json.RawMessage(*raw)
	}
	l.CreatedAt = time.Unix(createdAt, 0)
	l.UpdatedAt = time.Unix(updatedAt, 0)
	return &l, nil
}
