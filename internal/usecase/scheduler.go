package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/queue"
	"github.com/abakirov/outdialer/internal/repository"
	"github.com/abakirov/outdialer/internal/scheduler"
)

// Cache is the read-through cache in front of the preview and stats reads.
// Implemented by rediscache.Cache; nil-able via NoopCache for tests.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// NoopCache disables caching. Every Get is a miss.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (NoopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (NoopCache) Invalidate(context.Context, ...string) error           { return nil }

const (
	cacheKeyPending = "outdialer:pending"
	cacheKeyStats   = "outdialer:stats"
	cacheTTL        = 60 * time.Second
)

type SchedulerUsecase struct {
	calls        repository.ScheduledCallRepository
	configs      repository.ConfigRepository
	selector     *scheduler.Selector
	orchestrator *scheduler.Orchestrator
	enqueuer     queue.Enqueuer
	cache        Cache
	logger       *slog.Logger
}

func NewSchedulerUsecase(
	calls repository.ScheduledCallRepository,
	configs repository.ConfigRepository,
	selector *scheduler.Selector,
	orchestrator *scheduler.Orchestrator,
	enqueuer queue.Enqueuer,
	cache Cache,
	logger *slog.Logger,
) *SchedulerUsecase {
	return &SchedulerUsecase{
		calls:        calls,
		configs:      configs,
		selector:     selector,
		orchestrator: orchestrator,
		enqueuer:     enqueuer,
		cache:        cache,
		logger:       logger.With("component", "scheduler_usecase"),
	}
}

func (u *SchedulerUsecase) GetConfig(ctx context.Context) (*domain.SchedulerConfig, error) {
	return u.configs.Get(ctx)
}

func (u *SchedulerUsecase) UpdateConfig(ctx context.Context, patch domain.SchedulerConfigPatch) (*domain.SchedulerConfig, error) {
	cfg, err := u.configs.Update(ctx, patch)
	if err != nil {
		return nil, err
	}
	u.invalidate(ctx)
	return cfg, nil
}

// PendingCustomers previews who the next batch run would call. Zero values
// for lookaheadDays and limit fall back to the current config; only the
// default view is cached. The preview is advisory, not a reservation.
func (u *SchedulerUsecase) PendingCustomers(ctx context.Context, lookaheadDays, limit int) ([]*domain.Candidate, error) {
	defaultView := lookaheadDays == 0 && limit == 0

	if defaultView {
		var cached []*domain.Candidate
		if hit, err := u.cache.Get(ctx, cacheKeyPending, &cached); err != nil {
			u.logger.Warn("pending preview cache read", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	cfg, err := u.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}
	if lookaheadDays == 0 {
		lookaheadDays = cfg.LookaheadDays
	}
	if limit == 0 {
		limit = cfg.MaxCallsPerDay
	}

	candidates, err := u.selector.Select(ctx, lookaheadDays, cfg.SkipIfCalledWithinDays, limit)
	if err != nil {
		return nil, err
	}

	if defaultView {
		if err := u.cache.Set(ctx, cacheKeyPending, candidates, cacheTTL); err != nil {
			u.logger.Warn("pending preview cache write", "error", err)
		}
	}
	return candidates, nil
}

func (u *SchedulerUsecase) ListCalls(ctx context.Context, input repository.ListCallsInput) ([]*repository.ScheduledCallRow, error) {
	return u.calls.List(ctx, input)
}

func (u *SchedulerUsecase) GetCall(ctx context.Context, id string) (*domain.ScheduledCall, error) {
	return u.calls.GetByID(ctx, id)
}

type ScheduleCallInput struct {
	CustomerID    string
	PolicyRef     *string
	ScheduledDate time.Time
	Reason        domain.Reason
	Priority      int
	Notes         *string
}

// ScheduleCall creates one call outside the batch flow and enqueues its
// dispatch immediately. Defaults: today, reason manual, retries from config.
func (u *SchedulerUsecase) ScheduleCall(ctx context.Context, input ScheduleCallInput) (*domain.ScheduledCall, error) {
	cfg, err := u.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}

	if input.Reason == "" {
		input.Reason = domain.ReasonManual
	}
	if !input.Reason.Valid() {
		return nil, domain.ErrInvalidReason
	}
	date := input.ScheduledDate
	if date.IsZero() {
		date = time.Now()
	}

	call, err := u.calls.Create(ctx, &domain.ScheduledCall{
		CustomerID:    input.CustomerID,
		PolicyRef:     input.PolicyRef,
		ScheduledDate: dateOnly(date),
		Status:        domain.StatusPending,
		Reason:        input.Reason,
		Priority:      input.Priority,
		Notes:         input.Notes,
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	taskRef, err := u.enqueuer.Enqueue(ctx, call.ID, 0)
	if err != nil {
		u.logger.Error("enqueue manual call", "scheduled_call_id", call.ID, "error", err)
	} else {
		u.logger.Info("manual call scheduled",
			"scheduled_call_id", call.ID, "customer_id", call.CustomerID, "task_ref", taskRef)
	}

	u.invalidate(ctx)
	return call, nil
}

// CancelCall withdraws a pending or queued call. Cancelling twice is a
// no-op; cancelling an executed call is domain.ErrInvalidState.
func (u *SchedulerUsecase) CancelCall(ctx context.Context, id string) error {
	if err := u.calls.Cancel(ctx, id); err != nil {
		return err
	}
	u.invalidate(ctx)
	return nil
}

// StatsOutput is the daily aggregate plus the scheduler's posture.
type StatsOutput struct {
	domain.CallStats
	Enabled     bool       `json:"scheduler_enabled"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
}

func (u *SchedulerUsecase) Stats(ctx context.Context, date time.Time) (*StatsOutput, error) {
	date = dateOnly(date)
	key := fmt.Sprintf("%s:%s", cacheKeyStats, date.Format("2006-01-02"))

	var cached StatsOutput
	if hit, err := u.cache.Get(ctx, key, &cached); err != nil {
		u.logger.Warn("stats cache read", "error", err)
	} else if hit {
		return &cached, nil
	}

	stats, err := u.calls.Stats(ctx, date)
	if err != nil {
		return nil, err
	}
	cfg, err := u.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}

	out := &StatsOutput{
		CallStats: *stats,
		Enabled:   cfg.Enabled,
	}
	if cfg.Enabled {
		next := nextRunTime(time.Now(), cfg.DailyRunTime)
		out.NextRunTime = &next
	}

	if err := u.cache.Set(ctx, key, out, cacheTTL); err != nil {
		u.logger.Warn("stats cache write", "error", err)
	}
	return out, nil
}

// TriggerNow runs one batch immediately, bypassing the enabled flag and the
// daily schedule. Zero parameters fall back to the current config.
func (u *SchedulerUsecase) TriggerNow(ctx context.Context, lookaheadDays, maxCalls int) (*scheduler.BatchSummary, error) {
	cfg, err := u.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}
	if lookaheadDays == 0 {
		lookaheadDays = cfg.LookaheadDays
	}
	if maxCalls == 0 {
		maxCalls = cfg.MaxCallsPerDay
	}

	summary, err := u.orchestrator.TriggerNow(ctx, lookaheadDays, maxCalls)
	if err != nil {
		return nil, err
	}
	u.invalidate(ctx)
	return summary, nil
}

// Cleanup removes terminal call records older than olderThanDays.
func (u *SchedulerUsecase) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := dateOnly(time.Now()).AddDate(0, 0, -olderThanDays)
	deleted, err := u.calls.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		u.invalidate(ctx)
	}
	return deleted, nil
}

func (u *SchedulerUsecase) invalidate(ctx context.Context) {
	key := fmt.Sprintf("%s:%s", cacheKeyStats, dateOnly(time.Now()).Format("2006-01-02"))
	if err := u.cache.Invalidate(ctx, cacheKeyPending, key); err != nil {
		u.logger.Warn("cache invalidate", "error", err)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextRunTime computes the next occurrence of the HH:MM run time after now,
// in UTC. Malformed run times cannot reach here; config validation rejects
// them on write.
func nextRunTime(now time.Time, runTime string) time.Time {
	var hh, mm int
	fmt.Sscanf(runTime, "%d:%d", &hh, &mm)
	next := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), hh, mm, 0, 0, time.UTC)
	if !next.After(now.UTC()) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
