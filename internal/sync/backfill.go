package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/metrics"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

// Orchestrator advances resumable historical backfill jobs. Each tick
// processes a bounded quota of days per job so a year of history spreads
// across many ticks instead of bursting through the provider's rate limit.
type Orchestrator struct {
	db           *database.DB
	executor     *Executor
	wearable     *wearable.Client
	quota        int
	refreshEvery int
	logger       *slog.Logger
}

// NewOrchestrator creates a backfill orchestrator. quota bounds the days
// processed per job per tick; refreshEvery forces a token refresh after that
// many days within one tick.
func NewOrchestrator(db *database.DB, executor *Executor, w *wearable.Client, quota, refreshEvery int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:           db,
		executor:     executor,
		wearable:     w,
		quota:        quota,
		refreshEvery: refreshEvery,
		logger:       logger,
	}
}

// Start creates a backfill job for the user, or reports the existing job's
// progress when one is already in progress. Fails fast when the user has no
// wearable credential.
func (o *Orchestrator) Start(userID string, days int) (*database.BackfillJob, bool, error) {
	if days < 1 {
		return nil, false, fmt.Errorf("backfill days must be at least 1, got %d", days)
	}

	cred, err := o.db.GetWearableCredential(userID)
	if err != nil {
		return nil, false, err
	}
	if cred == nil {
		return nil, false, ErrNotConnected
	}

	job, created, err := o.db.StartBackfillJob(userID, days)
	if err != nil {
		return nil, false, err
	}

	if created {
		o.logger.Info("backfill started", "user_id", userID, "total_days", days)
	} else {
		o.logger.Info("backfill already in progress", "user_id", userID,
			"days_synced", job.DaysSynced, "total_days", job.TotalDays)
	}
	return job, created, nil
}

// EstimatedCompletionHours reports how many ticks, at the tick interval's
// hourly cadence, remain until a job finishes.
func (o *Orchestrator) EstimatedCompletionHours(job *database.BackfillJob) int {
	remaining := job.TotalDays - job.DaysSynced
	if remaining <= 0 {
		return 0
	}
	return (remaining + o.quota - 1) / o.quota
}

// DayFailure is one day that failed inside a tick
type DayFailure struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// JobTickResult is the outcome of one job's share of a tick
type JobTickResult struct {
	UserID        string       `json:"userId"`
	DaysProcessed int          `json:"daysProcessed"`
	DaysSynced    int          `json:"daysSynced"`
	TotalDays     int          `json:"totalDays"`
	Status        string       `json:"status"`
	Failures      []DayFailure `json:"failures,omitempty"`
}

// RunTick advances every in-progress job by up to the quota. Per-day failures
// are collected, not propagated: a bad day never stops the rest of the tick.
func (o *Orchestrator) RunTick(ctx context.Context) ([]JobTickResult, error) {
	metrics.BackfillTicksTotal.Inc()

	jobs, err := o.db.ListInProgressBackfillJobs()
	if err != nil {
		return nil, err
	}

	results := make([]JobTickResult, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, o.advanceJob(ctx, job))
	}

	if count, err := o.db.CountInProgressBackfillJobs(); err == nil {
		metrics.BackfillJobsInProgress.Set(float64(count))
	}

	o.logger.Info("backfill tick finished", "jobs", len(jobs))
	return results, nil
}

// advanceJob processes one job's quota of days, oldest date last. The cursor
// advances by the number of days attempted regardless of per-day failures.
func (o *Orchestrator) advanceJob(ctx context.Context, job *database.BackfillJob) JobTickResult {
	result := JobTickResult{
		UserID:     job.UserID,
		DaysSynced: job.DaysSynced,
		TotalDays:  job.TotalDays,
		Status:     job.Status,
	}

	cred, err := o.db.GetWearableCredential(job.UserID)
	if err != nil {
		result.Failures = append(result.Failures, DayFailure{Reason: err.Error()})
		return result
	}
	if cred == nil {
		// Disconnected mid-backfill; the job cannot continue
		o.logger.Warn("backfill job has no credential", "user_id", job.UserID)
		if err := o.db.FailBackfillJob(job.UserID, "wearable account not connected"); err != nil {
			o.logger.Error("failed to mark job errored", "user_id", job.UserID, "error", err)
		}
		result.Status = database.JobStatusError
		return result
	}

	daysToProcess := min(o.quota, job.TotalDays-job.DaysSynced)
	today := time.Now()

	daysAttempted := 0
	for i := 0; i < daysToProcess; i++ {
		if i > 0 && o.refreshEvery > 0 && i%o.refreshEvery == 0 {
			if err := o.forceRefresh(ctx, job.UserID); err != nil {
				// A revoked token will fail every remaining day; stop here
				// and let the next tick resume from the cursor.
				o.logger.Error("mid-tick token refresh failed", "user_id", job.UserID, "error", err)
				result.Failures = append(result.Failures, DayFailure{Reason: err.Error()})
				break
			}
		}

		date := today.AddDate(0, 0, -(job.CurrentDayOffset + i)).Format(database.DateFormat)

		if _, err := o.executor.SyncDay(ctx, job.UserID, date, metrics.SyncKindBackfill); err != nil {
			result.Failures = append(result.Failures, DayFailure{Date: date, Reason: err.Error()})
		}
		daysAttempted++
		metrics.BackfillDaysProcessed.Inc()
	}

	if daysAttempted == 0 {
		return result
	}

	updated, err := o.db.AdvanceBackfillJob(job.UserID, daysAttempted)
	if err != nil {
		o.logger.Error("failed to advance backfill job", "user_id", job.UserID, "error", err)
		result.Failures = append(result.Failures, DayFailure{Reason: err.Error()})
		return result
	}

	result.DaysProcessed = daysAttempted
	result.DaysSynced = updated.DaysSynced
	result.Status = updated.Status

	if updated.Status == database.JobStatusCompleted {
		metrics.BackfillJobsCompletedTotal.Inc()
		o.logger.Info("backfill completed", "user_id", job.UserID, "total_days", updated.TotalDays)
	} else {
		o.logger.Info("backfill advanced", "user_id", job.UserID,
			"days_processed", daysAttempted, "days_synced", updated.DaysSynced, "total_days", updated.TotalDays)
	}
	return result
}

// forceRefresh refreshes the user's access token now, ignoring the expiry
// margin, so a long tick never runs into mid-loop expiry.
func (o *Orchestrator) forceRefresh(ctx context.Context, userID string) error {
	cred, err := o.db.GetWearableCredential(userID)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrNotConnected
	}

	_, err = o.wearable.EnsureValidToken(ctx, cred.UserID, cred.AccessToken, cred.RefreshToken, time.Now())
	return err
}

// AutoSyncResult is one user's outcome from an auto-sync pass
type AutoSyncResult struct {
	UserID string `json:"userId"`
	Synced int    `json:"synced"`
	Errors int    `json:"errors"`
}

// AutoSyncAll syncs today and yesterday for every connected user. Per-user
// failures are counted and skipped, never propagated.
func (o *Orchestrator) AutoSyncAll(ctx context.Context) ([]AutoSyncResult, error) {
	creds, err := o.db.ListWearableCredentials()
	if err != nil {
		return nil, err
	}

	today := time.Now()
	dates := []string{
		today.Format(database.DateFormat),
		today.AddDate(0, 0, -1).Format(database.DateFormat),
	}

	results := make([]AutoSyncResult, 0, len(creds))
	for _, cred := range creds {
		r := AutoSyncResult{UserID: cred.UserID}
		for _, date := range dates {
			if _, err := o.executor.SyncDay(ctx, cred.UserID, date, metrics.SyncKindAuto); err != nil {
				r.Errors++
				if errors.Is(err, ErrNotConnected) || errors.Is(err, wearable.ErrTokenRefresh) {
					// Second date would fail the same way
					break
				}
				continue
			}
			r.Synced++
		}
		results = append(results, r)
	}

	o.logger.Info("auto-sync finished", "users", len(creds))
	return results, nil
}
