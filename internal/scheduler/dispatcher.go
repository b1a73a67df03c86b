package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/abakirov/outdialer/internal/caller"
	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/metrics"
	"github.com/abakirov/outdialer/internal/queue"
	"github.com/abakirov/outdialer/internal/repository"
)

// Dispatcher consumes dispatch work items and drives each scheduled call
// through its state machine. Delivery is at-least-once, so every handler run
// starts with a status CAS: a lost swap means another worker (or a
// cancellation) got there first, and the item is dropped without side effects.
type Dispatcher struct {
	calls     repository.ScheduledCallRepository
	configs   repository.ConfigRepository
	initiator caller.Initiator
	enqueuer  queue.Enqueuer
	consumer  queue.Consumer
	logger    *slog.Logger
}

func NewDispatcher(
	calls repository.ScheduledCallRepository,
	configs repository.ConfigRepository,
	initiator caller.Initiator,
	enqueuer queue.Enqueuer,
	consumer queue.Consumer,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		calls:     calls,
		configs:   configs,
		initiator: initiator,
		enqueuer:  enqueuer,
		consumer:  consumer,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Run blocks consuming the dispatch queue with the given worker count until
// ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, workers int) error {
	d.logger.Info("dispatcher starting", "workers", workers)
	return d.consumer.Consume(ctx, workers, d.Handle)
}

// Handle processes one work item. It always returns nil: every failure mode
// is resolved against the database (fail, requeue, or discard), so queue-level
// redelivery would only duplicate work the CAS already rejects.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) error {
	metrics.DispatchPickupLatency.Observe(time.Since(msg.EnqueuedAt).Seconds())

	logger := d.logger.With("scheduled_call_id", msg.ScheduledCallID, "task_ref", msg.ID)

	call, err := d.calls.GetByID(ctx, msg.ScheduledCallID)
	if errors.Is(err, domain.ErrCallNotFound) {
		logger.Warn("work item references unknown call, dropping")
		metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
		return nil
	}
	if err != nil {
		logger.Error("load scheduled call", "error", err)
		metrics.DispatchOutcomesTotal.WithLabelValues("error").Inc()
		return nil
	}

	// Cancelled while waiting in the queue, or a stale redelivery of an
	// already-resolved item.
	if call.Status != domain.StatusPending {
		logger.Info("call no longer pending, dropping", "status", call.Status)
		metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
		return nil
	}

	if err := d.calls.MarkQueued(ctx, call.ID, msg.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrCallNotFound) {
			logger.Info("lost claim race, dropping")
			metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
			return nil
		}
		logger.Error("mark queued", "error", err)
		metrics.DispatchOutcomesTotal.WithLabelValues("error").Inc()
		return nil
	}

	d.attempt(ctx, logger, call)
	return nil
}

// attempt performs one call initiation and records its outcome.
func (d *Dispatcher) attempt(ctx context.Context, logger *slog.Logger, call *domain.ScheduledCall) {
	metrics.CallsInFlight.Inc()
	start := time.Now()
	result, err := d.initiator.InitiateCall(ctx, call.CustomerID, call.Reason)
	metrics.CallsInFlight.Dec()

	switch {
	case err == nil:
		metrics.CallInitiationDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
		if err := d.calls.Complete(ctx, call.ID, result.CallRef); err != nil {
			// Cancelled mid-flight; the call was still placed. Log loudly and
			// leave the record cancelled.
			logger.Warn("complete after initiation", "error", err, "call_ref", result.CallRef)
			metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
			return
		}
		logger.Info("call initiated", "call_ref", result.CallRef, "room", result.RoomName)
		metrics.DispatchOutcomesTotal.WithLabelValues("completed").Inc()

	case errors.Is(err, caller.ErrPermanent):
		metrics.CallInitiationDuration.WithLabelValues("permanent").Observe(time.Since(start).Seconds())
		logger.Warn("permanent initiation failure", "error", err)
		d.fail(ctx, logger, call.ID, err)

	default:
		// Transient, including anything the gateway client could not classify.
		metrics.CallInitiationDuration.WithLabelValues("transient").Observe(time.Since(start).Seconds())
		if call.RetryCount >= call.MaxRetries {
			logger.Warn("retries exhausted", "error", err, "retry_count", call.RetryCount)
			d.fail(ctx, logger, call.ID, err)
			return
		}
		d.retry(ctx, logger, call, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, id string, cause error) {
	if err := d.calls.Fail(ctx, id, cause.Error()); err != nil {
		logger.Warn("mark failed", "error", err)
		metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
		return
	}
	metrics.DispatchOutcomesTotal.WithLabelValues("failed").Inc()
}

// retry swaps the record back to pending with an incremented retry count and
// re-enqueues it after the configured delay.
func (d *Dispatcher) retry(ctx context.Context, logger *slog.Logger, call *domain.ScheduledCall, cause error) {
	if err := d.calls.Requeue(ctx, call.ID, cause.Error()); err != nil {
		logger.Warn("requeue swap lost", "error", err)
		metrics.DispatchOutcomesTotal.WithLabelValues("stale").Inc()
		return
	}

	delay := d.retryDelay(ctx)
	taskRef, err := d.enqueuer.Enqueue(ctx, call.ID, delay)
	if err != nil {
		// The record is pending without a queue item; the reconciler in the
		// next batch run will not recreate it, so surface this prominently.
		logger.Error("re-enqueue after transient failure", "error", err)
		metrics.DispatchOutcomesTotal.WithLabelValues("error").Inc()
		return
	}

	logger.Info("retry scheduled",
		"retry_count", call.RetryCount+1,
		"max_retries", call.MaxRetries,
		"delay", delay,
		"task_ref", taskRef,
		"cause", cause.Error(),
	)
	metrics.DispatchOutcomesTotal.WithLabelValues("retried").Inc()
}

func (d *Dispatcher) retryDelay(ctx context.Context) time.Duration {
	cfg, err := d.configs.Get(ctx)
	if err != nil {
		d.logger.Warn("load config for retry delay, using default", "error", err)
		return domain.DefaultSchedulerConfig().RetryDelay()
	}
	return cfg.RetryDelay()
}
