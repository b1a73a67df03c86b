package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/queue"
	"github.com/abakirov/outdialer/internal/repository"
)

// admissionWave is the spacing between dispatch waves once a batch exceeds
// max_concurrent_calls. It approximates the upper bound of one call's
// duration; the cap is advisory, not a hard semaphore.
const admissionWave = 90 * time.Second

// BatchSummary reports the outcome of one batch run.
type BatchSummary struct {
	TotalCandidates  int `json:"total_candidates"`
	Created          int `json:"created"`
	SkippedDuplicate int `json:"skipped_duplicate"`
}

// Orchestrator turns candidates into pending scheduled calls and enqueues
// their dispatch work items. It is the single producer; dispatcher workers
// are the consumers.
type Orchestrator struct {
	selector *Selector
	calls    repository.ScheduledCallRepository
	configs  repository.ConfigRepository
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

func NewOrchestrator(
	selector *Selector,
	calls repository.ScheduledCallRepository,
	configs repository.ConfigRepository,
	enqueuer queue.Enqueuer,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		selector: selector,
		calls:    calls,
		configs:  configs,
		enqueuer: enqueuer,
		logger:   logger.With("component", "orchestrator"),
	}
}

// RunBatch selects up to maxCalls candidates and creates one pending
// scheduled call per candidate. Duplicates (already scheduled today) are
// silently skipped; each creation is its own atomic operation, so a failure
// on one candidate never corrupts the rest of the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, lookaheadDays, maxCalls int) (*BatchSummary, error) {
	cfg, err := o.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}

	candidates, err := o.selector.Select(ctx, lookaheadDays, cfg.SkipIfCalledWithinDays, maxCalls)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	summary := &BatchSummary{TotalCandidates: len(candidates)}
	today := dateOnly(time.Now())

	for _, cand := range candidates {
		policyRef := cand.PolicyRef
		created, err := o.calls.Create(ctx, &domain.ScheduledCall{
			CustomerID:    cand.CustomerID,
			PolicyRef:     &policyRef,
			ScheduledDate: today,
			Status:        domain.StatusPending,
			Reason:        domain.ReasonExpiringPolicy,
			Priority:      cand.DaysToExpiry,
			MaxRetries:    cfg.MaxRetries,
		})
		if errors.Is(err, domain.ErrAlreadyScheduled) {
			summary.SkippedDuplicate++
			metrics.BatchDuplicatesSkippedTotal.Inc()
			continue
		}
		if err != nil {
			o.logger.Error("create scheduled call",
				"customer_id", cand.CustomerID, "error", err)
			continue
		}

		delay := admissionDelay(summary.Created, cfg.MaxConcurrentCalls)
		taskRef, err := o.enqueuer.Enqueue(ctx, created.ID, delay)
		if err != nil {
			// The record stays pending; the next batch run skips the
			// customer (active record exists) and an operator can requeue.
			o.logger.Error("enqueue dispatch item",
				"scheduled_call_id", created.ID, "error", err)
		} else {
			o.logger.Info("scheduled call created",
				"scheduled_call_id", created.ID,
				"customer_id", cand.CustomerID,
				"days_to_expiry", cand.DaysToExpiry,
				"task_ref", taskRef,
				"dispatch_delay", delay,
			)
		}

		summary.Created++
		metrics.BatchCallsCreatedTotal.Inc()
	}

	o.logger.Info("batch finished",
		"total_candidates", summary.TotalCandidates,
		"created", summary.Created,
		"skipped_duplicate", summary.SkippedDuplicate,
	)
	return summary, nil
}

// TriggerNow is the operator override: explicit parameters, runs even when
// the scheduler is disabled.
func (o *Orchestrator) TriggerNow(ctx context.Context, lookaheadDays, maxCalls int) (*BatchSummary, error) {
	metrics.BatchRunsTotal.WithLabelValues("manual").Inc()
	return o.RunBatch(ctx, lookaheadDays, maxCalls)
}

// admissionDelay serializes items beyond the concurrency cap into waves:
// the first maxConcurrent items go out immediately, the next wave after
// admissionWave, and so on.
func admissionDelay(position, maxConcurrent int) time.Duration {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	wave := position / maxConcurrent
	return time.Duration(wave) * admissionWave
}
