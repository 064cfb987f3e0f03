package sync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/bisse060/groofit-sub000/internal/database"
)

func newTestOrchestrator(t *testing.T, f *fakeWearable, quota, refreshEvery int) (*Orchestrator, *database.DB) {
	t.Helper()
	executor, db, w := newTestExecutor(t, f)
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewOrchestrator(db, executor, w, quota, refreshEvery, logger), db
}

func TestBackfillStart(t *testing.T) {
	f := newFakeWearable()
	defer f.server.Close()

	orch, db := newTestOrchestrator(t, f, 30, 10)

	t.Run("NotConnected", func(t *testing.T) {
		_, _, err := orch.Start("user-1", 90)
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("CreatesJob", func(t *testing.T) {
		connectUser(t, db, "user-1")

		job, created, err := orch.Start("user-1", 90)
		if err != nil {
			t.Fatalf("Failed to start backfill: %v", err)
		}
		if !created {
			t.Error("Expected a new job")
		}
		if job.TotalDays != 90 || job.Status != database.JobStatusInProgress {
			t.Errorf("Unexpected job: %+v", job)
		}
		if hours := orch.EstimatedCompletionHours(job); hours != 3 {
			t.Errorf("Expected 3 estimated hours for 90 days at 30/tick, got %d", hours)
		}
	})

	t.Run("IdempotentWhileRunning", func(t *testing.T) {
		job, created, err := orch.Start("user-1", 365)
		if err != nil {
			t.Fatalf("Failed on repeat start: %v", err)
		}
		if created {
			t.Error("Expected existing job to be returned, not a new one")
		}
		if job.TotalDays != 90 {
			t.Errorf("Expected original horizon unchanged, got %d", job.TotalDays)
		}
	})

	t.Run("RejectsBadHorizon", func(t *testing.T) {
		if _, _, err := orch.Start("user-1", 0); err == nil {
			t.Error("Expected error for zero days")
		}
	})
}

func TestBackfillTicksToCompletion(t *testing.T) {
	f := newFakeWearable()
	defer f.server.Close()

	orch, db := newTestOrchestrator(t, f, 30, 10)
	connectUser(t, db, "user-1")

	if _, _, err := orch.Start("user-1", 90); err != nil {
		t.Fatalf("Failed to start backfill: %v", err)
	}

	ctx := context.Background()
	for tick := 1; tick <= 3; tick++ {
		results, err := orch.RunTick(ctx)
		if err != nil {
			t.Fatalf("Tick %d failed: %v", tick, err)
		}
		if len(results) != 1 {
			t.Fatalf("Tick %d: expected 1 job result, got %d", tick, len(results))
		}
		if results[0].DaysProcessed != 30 {
			t.Errorf("Tick %d: expected 30 days processed, got %d", tick, results[0].DaysProcessed)
		}

		job, err := db.GetBackfillJob("user-1")
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if job.DaysSynced != tick*30 {
			t.Errorf("Tick %d: expected %d days synced, got %d", tick, tick*30, job.DaysSynced)
		}
		if job.CurrentDayOffset != tick*30 {
			t.Errorf("Tick %d: expected offset %d, got %d", tick, tick*30, job.CurrentDayOffset)
		}
	}

	job, _ := db.GetBackfillJob("user-1")
	if job.Status != database.JobStatusCompleted {
		t.Errorf("Expected completed after 3 ticks, got %s", job.Status)
	}
	if job.DaysSynced != 90 {
		t.Errorf("Expected 90 days synced, got %d", job.DaysSynced)
	}

	// 90 days of logs were written
	count, err := db.CountDailyLogs("user-1")
	if err != nil {
		t.Fatalf("Failed to count logs: %v", err)
	}
	if count != 90 {
		t.Errorf("Expected 90 daily log rows, got %d", count)
	}

	// Mid-tick forced refreshes happened (every 10 days inside each 30-day tick)
	if f.tokenCalls.Load() == 0 {
		t.Error("Expected forced token refreshes during ticks")
	}

	// A completed job is not picked up again
	results, err := orch.RunTick(context.Background())
	if err != nil {
		t.Fatalf("Tick after completion failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no jobs after completion, got %d", len(results))
	}
}

func TestBackfillAdvancesDespiteDayFailures(t *testing.T) {
	f := newFakeWearable()
	defer f.server.Close()

	// Fail three of the days in the first quota window
	today := time.Now()
	for _, offset := range []int{1, 3, 5} {
		date := today.AddDate(0, 0, -offset).Format(database.DateFormat)
		f.failActivity[date] = http.StatusNotFound
	}

	orch, db := newTestOrchestrator(t, f, 10, 0)
	connectUser(t, db, "user-1")

	if _, _, err := orch.Start("user-1", 10); err != nil {
		t.Fatalf("Failed to start backfill: %v", err)
	}

	results, err := orch.RunTick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if len(results[0].Failures) != 3 {
		t.Errorf("Expected 3 day failures, got %d", len(results[0].Failures))
	}

	// The cursor advances by the full quota regardless of failures
	job, _ := db.GetBackfillJob("user-1")
	if job.DaysSynced != 10 || job.CurrentDayOffset != 10 {
		t.Errorf("Expected full advance despite failures, got %d/%d", job.DaysSynced, job.CurrentDayOffset)
	}
	if job.Status != database.JobStatusCompleted {
		t.Errorf("Expected completed, got %s", job.Status)
	}

	count, _ := db.CountDailyLogs("user-1")
	if count != 7 {
		t.Errorf("Expected 7 successful days stored, got %d", count)
	}
}

func TestBackfillDisconnectedUserFailsJob(t *testing.T) {
	f := newFakeWearable()
	defer f.server.Close()

	orch, db := newTestOrchestrator(t, f, 10, 0)
	connectUser(t, db, "user-1")

	if _, _, err := orch.Start("user-1", 10); err != nil {
		t.Fatalf("Failed to start backfill: %v", err)
	}

	// Disconnect before the tick runs
	if err := db.DeleteWearableCredential("user-1"); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}

	results, err := orch.RunTick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != database.JobStatusError {
		t.Fatalf("Expected errored job result, got %+v", results)
	}

	job, _ := db.GetBackfillJob("user-1")
	if job.Status != database.JobStatusError {
		t.Errorf("Expected job marked errored, got %s", job.Status)
	}
	if job.ErrorMessage == nil {
		t.Error("Expected an error message on the job")
	}
	if job.DaysSynced != 0 {
		t.Errorf("Expected no advance for a failed job, got %d", job.DaysSynced)
	}
}

func TestAutoSyncAll(t *testing.T) {
	f := newFakeWearable()
	defer f.server.Close()

	orch, db := newTestOrchestrator(t, f, 10, 0)
	connectUser(t, db, "user-1")
	connectUser(t, db, "user-2")

	results, err := orch.AutoSyncAll(context.Background())
	if err != nil {
		t.Fatalf("Auto-sync failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 user results, got %d", len(results))
	}
	for _, r := range results {
		if r.Synced != 2 || r.Errors != 0 {
			t.Errorf("Expected today and yesterday synced for %s, got %+v", r.UserID, r)
		}
	}

	today := time.Now().Format(database.DateFormat)
	yesterday := time.Now().AddDate(0, 0, -1).Format(database.DateFormat)
	for _, date := range []string{today, yesterday} {
		stored, err := db.GetDailyLog("user-1", date)
		if err != nil {
			t.Fatalf("Failed to get daily log: %v", err)
		}
		if stored == nil {
			t.Errorf("Expected daily log for %s", date)
		}
	}
}
