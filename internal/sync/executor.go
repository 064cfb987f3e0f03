package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/metrics"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

// Executor syncs one user's provider data for one calendar date
type Executor struct {
	db       *database.DB
	wearable *wearable.Client
	logger   *slog.Logger
}

// NewExecutor creates a daily sync executor
func NewExecutor(db *database.DB, w *wearable.Client, logger *slog.Logger) *Executor {
	return &Executor{db: db, wearable: w, logger: logger}
}

// DayResult is the data captured by one day sync
type DayResult struct {
	Date        string   `json:"date"`
	Steps       int64    `json:"steps"`
	CaloriesOut int64    `json:"caloriesOut"`
	WeightKg    *float64 `json:"weightKg,omitempty"`
	BodyFatPct  *float64 `json:"bodyFatPct,omitempty"`
}

// SyncDay fetches activity, weight, and body-fat data for one date and
// merges it into the daily log. The activity summary is mandatory: its
// failure fails the call. Weight and body-fat fetches are individually
// failable and never abort the rest. Exactly one sync log entry is written
// per invocation, whatever the outcome.
func (e *Executor) SyncDay(ctx context.Context, userID, date, kind string) (*DayResult, error) {
	timer := prometheus.NewTimer(metrics.SyncDuration.WithLabelValues(kind))
	defer timer.ObserveDuration()

	attemptID := uuid.NewString()
	log := e.logger.With("attempt_id", attemptID, "user_id", userID, "date", date)

	cred, err := e.db.GetWearableCredential(userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		e.record(attemptID, userID, date, kind, database.SyncStatusError, "wearable account not connected")
		return nil, ErrNotConnected
	}

	token, err := e.wearable.EnsureValidToken(ctx, cred.UserID, cred.AccessToken, cred.RefreshToken, cred.TokenExpiresAt)
	if err != nil {
		e.record(attemptID, userID, date, kind, database.SyncStatusError, fmt.Sprintf("token refresh failed: %v", err))
		return nil, err
	}

	activity, err := e.wearable.GetDailyActivity(ctx, token, date)
	if err != nil {
		log.Error("activity fetch failed", "error", err)
		e.record(attemptID, userID, date, kind, database.SyncStatusError, fmt.Sprintf("activity fetch failed: %v", err))
		return nil, fmt.Errorf("activity fetch failed: %w", err)
	}

	captured := []string{"steps", "calories"}
	var skipped []string

	weight, err := e.wearable.GetWeight(ctx, token, date)
	if err != nil {
		log.Warn("weight fetch failed", "error", err)
		skipped = append(skipped, "weight")
		weight = nil
	} else if weight != nil {
		captured = append(captured, "weight")
	}

	bodyFat, err := e.wearable.GetBodyFat(ctx, token, date)
	if err != nil {
		log.Warn("body fat fetch failed", "error", err)
		skipped = append(skipped, "body_fat")
		bodyFat = nil
	} else if bodyFat != nil {
		captured = append(captured, "body_fat")
	}

	err = e.db.UpsertDailyLog(&database.DailyLog{
		UserID:      userID,
		Date:        date,
		Steps:       &activity.Steps,
		CaloriesOut: &activity.CaloriesOut,
		WeightKg:    weight,
		BodyFatPct:  bodyFat,
	})
	if err != nil {
		e.record(attemptID, userID, date, kind, database.SyncStatusError, fmt.Sprintf("failed to store daily log: %v", err))
		return nil, err
	}

	if err := e.db.TouchWearableLastSync(userID); err != nil {
		log.Error("failed to touch last sync", "error", err)
	}

	message := "captured: " + strings.Join(captured, ", ")
	if len(skipped) > 0 {
		message += "; skipped: " + strings.Join(skipped, ", ")
	}
	e.record(attemptID, userID, date, kind, database.SyncStatusSuccess, message)

	log.Info("day synced", "steps", activity.Steps, "calories_out", activity.CaloriesOut,
		"weight", weight != nil, "body_fat", bodyFat != nil)

	return &DayResult{
		Date:        date,
		Steps:       activity.Steps,
		CaloriesOut: activity.CaloriesOut,
		WeightKg:    weight,
		BodyFatPct:  bodyFat,
	}, nil
}

// SleepResult is the outcome of one sleep sync
type SleepResult struct {
	Date            string `json:"date"`
	NoData          bool   `json:"noData,omitempty"`
	DurationMinutes *int64 `json:"durationMinutes,omitempty"`
	Efficiency      *int64 `json:"efficiency,omitempty"`
}

// SyncSleep fetches the sleep log for one date. A night with no recorded
// sleep is a successful sync with NoData set, not an error.
func (e *Executor) SyncSleep(ctx context.Context, userID, date string) (*SleepResult, error) {
	timer := prometheus.NewTimer(metrics.SyncDuration.WithLabelValues(metrics.SyncKindSleep))
	defer timer.ObserveDuration()

	attemptID := uuid.NewString()

	cred, err := e.db.GetWearableCredential(userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusError, "wearable account not connected")
		return nil, ErrNotConnected
	}

	token, err := e.wearable.EnsureValidToken(ctx, cred.UserID, cred.AccessToken, cred.RefreshToken, cred.TokenExpiresAt)
	if err != nil {
		e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusError, fmt.Sprintf("token refresh failed: %v", err))
		return nil, err
	}

	sleep, err := e.wearable.GetSleep(ctx, token, date)
	if err != nil {
		e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusError, fmt.Sprintf("sleep fetch failed: %v", err))
		return nil, fmt.Errorf("sleep fetch failed: %w", err)
	}

	if sleep == nil {
		e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusSuccess, "sleep: no data")
		return &SleepResult{Date: date, NoData: true}, nil
	}

	var startTime, endTime *time.Time
	if !sleep.StartTime.IsZero() {
		startTime = &sleep.StartTime
	}
	if !sleep.EndTime.IsZero() {
		endTime = &sleep.EndTime
	}

	err = e.db.UpsertSleepLog(&database.SleepLog{
		UserID:          userID,
		Date:            date,
		DurationMinutes: &sleep.DurationMinutes,
		Efficiency:      &sleep.Efficiency,
		MinutesDeep:     &sleep.MinutesDeep,
		MinutesLight:    &sleep.MinutesLight,
		MinutesREM:      &sleep.MinutesREM,
		MinutesAwake:    &sleep.MinutesAwake,
		StartTime:       startTime,
		EndTime:         endTime,
		Raw:             sleep.Raw,
	})
	if err != nil {
		e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusError, fmt.Sprintf("failed to store sleep log: %v", err))
		return nil, err
	}

	e.record(attemptID, userID, date, metrics.SyncKindSleep, database.SyncStatusSuccess,
		fmt.Sprintf("sleep: %d minutes, efficiency %d", sleep.DurationMinutes, sleep.Efficiency))

	return &SleepResult{
		Date:            date,
		DurationMinutes: &sleep.DurationMinutes,
		Efficiency:      &sleep.Efficiency,
	}, nil
}

// record appends the sync log entry and bumps the attempt counter
func (e *Executor) record(attemptID, userID, date, kind, status, message string) {
	result := metrics.ResultSuccess
	if status != database.SyncStatusSuccess {
		result = metrics.ResultFailure
	}
	metrics.SyncAttemptsTotal.WithLabelValues(kind, result).Inc()

	if _, err := e.db.AppendSyncLog(attemptID, userID, date, status, message); err != nil {
		e.logger.Error("failed to append sync log", "attempt_id", attemptID, "user_id", userID, "error", err)
	}
}
