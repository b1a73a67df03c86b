package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/repository"
)

// Sweeper periodically deletes terminal scheduled-call records older than the
// retention window. Pending and queued records are never touched.
type Sweeper struct {
	calls         repository.ScheduledCallRepository
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

func NewSweeper(calls repository.ScheduledCallRepository, retentionDays int, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		calls:         calls,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With("component", "sweeper"),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One sweep
// runs immediately at startup.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce removes records older than olderThanDays and reports the count.
// The HTTP cleanup endpoint calls this directly.
func (s *Sweeper) SweepOnce(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := dateOnly(time.Now()).AddDate(0, 0, -olderThanDays)
	deleted, err := s.calls.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SweepDeletedTotal.Add(float64(deleted))
	return deleted, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.SweepOnce(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("retention sweep finished", "deleted", deleted, "retention_days", s.retentionDays)
	}
}
