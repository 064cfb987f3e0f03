package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/bisse060/groofit-sub000/internal/metrics"
	"github.com/bisse060/groofit-sub000/internal/oauth"
	"github.com/bisse060/groofit-sub000/internal/sync"
)

// Scheduler drives the periodic work: backfill ticks, auto-sync of all
// connected users, and purging of abandoned OAuth states. External schedulers
// can drive the same work through the /internal endpoints instead.
type Scheduler struct {
	orchestrator *sync.Orchestrator
	oauth        *oauth.Manager
	interval     time.Duration
	stateTTL     time.Duration
	logger       *slog.Logger
}

// New creates a scheduler
func New(orch *sync.Orchestrator, mgr *oauth.Manager, interval, stateTTL time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orch,
		oauth:        mgr,
		interval:     interval,
		stateTTL:     stateTTL,
		logger:       logger,
	}
}

// Run ticks at the configured interval until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	metrics.SchedulerActive.Set(1)
	defer metrics.SchedulerActive.Set(0)

	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scheduled pass. Failures are logged, never fatal;
// the next pass retries naturally.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if _, err := s.orchestrator.RunTick(ctx); err != nil {
		s.logger.Error("backfill tick failed", "error", err)
	}

	if _, err := s.orchestrator.AutoSyncAll(ctx); err != nil {
		s.logger.Error("auto-sync failed", "error", err)
	}

	purged, err := s.oauth.PurgeExpiredStates(s.stateTTL)
	if err != nil {
		s.logger.Error("oauth state purge failed", "error", err)
	} else if purged > 0 {
		metrics.OAuthStatesPurgedTotal.Add(float64(purged))
		s.logger.Info("purged expired oauth states", "count", purged)
	}
}
