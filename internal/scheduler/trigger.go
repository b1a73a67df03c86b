package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/repository"
)

// configPollInterval bounds how long a daily_run_time change can take to
// become effective.
const configPollInterval = time.Minute

// Trigger fires the daily batch at the configured run time. The run time
// lives in the database, so the trigger polls for changes and rebuilds its
// cron entry when the configured time moves.
type Trigger struct {
	orchestrator *Orchestrator
	configs      repository.ConfigRepository
	logger       *slog.Logger

	mu          sync.Mutex
	cron        *cron.Cron
	currentSpec string
	lastRunDate time.Time
}

func NewTrigger(orchestrator *Orchestrator, configs repository.ConfigRepository, logger *slog.Logger) *Trigger {
	return &Trigger{
		orchestrator: orchestrator,
		configs:      configs,
		logger:       logger.With("component", "trigger"),
	}
}

// Run installs the cron entry and keeps it in sync with the configured run
// time until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context) error {
	if err := t.reschedule(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			if t.cron != nil {
				<-t.cron.Stop().Done()
			}
			t.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			if err := t.reschedule(ctx); err != nil {
				t.logger.Error("refresh cron schedule", "error", err)
			}
		}
	}
}

// NextRunTime reports when the daily batch will next fire, if a schedule is
// installed.
func (t *Trigger) NextRunTime() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron == nil {
		return nil
	}
	entries := t.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// reschedule rebuilds the cron runner when the configured run time changed.
func (t *Trigger) reschedule(ctx context.Context) error {
	cfg, err := t.configs.Get(ctx)
	if err != nil {
		return fmt.Errorf("load scheduler config: %w", err)
	}

	spec, err := cronSpec(cfg.DailyRunTime)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if spec == t.currentSpec && t.cron != nil {
		return nil
	}

	if t.cron != nil {
		<-t.cron.Stop().Done()
	}

	runner := cron.New()
	if _, err := runner.AddFunc(spec, func() { t.fire(context.Background()) }); err != nil {
		return fmt.Errorf("install cron entry %q: %w", spec, err)
	}
	runner.Start()

	t.cron = runner
	t.currentSpec = spec
	t.logger.Info("daily trigger scheduled", "run_time", cfg.DailyRunTime, "cron", spec)
	return nil
}

// fire runs one daily batch if the scheduler is enabled and no batch ran
// today. The date guard keeps a cron rebuild near the run time from firing
// twice.
func (t *Trigger) fire(ctx context.Context) {
	today := dateOnly(time.Now())

	t.mu.Lock()
	if t.lastRunDate.Equal(today) {
		t.mu.Unlock()
		t.logger.Info("batch already ran today, skipping")
		return
	}
	t.lastRunDate = today
	t.mu.Unlock()

	cfg, err := t.configs.Get(ctx)
	if err != nil {
		t.logger.Error("load scheduler config", "error", err)
		return
	}
	if !cfg.Enabled {
		t.logger.Info("scheduler disabled, skipping daily batch")
		return
	}

	metrics.BatchRunsTotal.WithLabelValues("daily").Inc()
	summary, err := t.orchestrator.RunBatch(ctx, cfg.LookaheadDays, cfg.MaxCallsPerDay)
	if err != nil {
		t.logger.Error("daily batch failed", "error", err)
		return
	}
	t.logger.Info("daily batch finished",
		"created", summary.Created,
		"skipped_duplicate", summary.SkippedDuplicate,
	)
}

// cronSpec converts an HH:MM run time into a standard five-field cron
// expression and validates it.
func cronSpec(runTime string) (string, error) {
	parts := strings.SplitN(runTime, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed run time %q", runTime)
	}
	spec := fmt.Sprintf("%s %s * * *",
		strings.TrimPrefix(parts[1], "0"),
		strings.TrimPrefix(parts[0], "0"),
	)
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("run time %q: %w", runTime, err)
	}
	return spec, nil
}
