package repository

import (
	"context"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
)

type ListCallsInput struct {
	Date       *time.Time    // scheduled_date filter, nil = all dates
	Status     domain.Status // empty = all statuses
	CustomerID string        // empty = all customers
	Limit      int
}

// ScheduledCallRow is a scheduled call joined with the customer's display
// fields for list responses.
type ScheduledCallRow struct {
	domain.ScheduledCall
	CustomerName  string
	CustomerPhone string
}

// Usecases and the scheduler depend on this interface, not the pgx
// implementation, so tests can substitute fakes.
//
// Every status mutation is a compare-and-swap keyed on the previously
// observed status: the UPDATE carries a WHERE status = <expected> clause and
// affects zero rows when a concurrent writer got there first. Callers receive
// domain.ErrInvalidState for a lost swap and domain.ErrCallNotFound for an
// unknown id.
type ScheduledCallRepository interface {
	// Create inserts a new record in status pending. The partial unique index
	// on (customer_id, scheduled_date) over active statuses makes creation
	// idempotent per day; a collision surfaces as domain.ErrAlreadyScheduled.
	Create(ctx context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error)
	GetByID(ctx context.Context, id string) (*domain.ScheduledCall, error)
	List(ctx context.Context, input ListCallsInput) ([]*ScheduledCallRow, error)

	// HasActiveForDate reports whether the customer already has a pending or
	// queued call on the given date.
	HasActiveForDate(ctx context.Context, customerID string, date time.Time) (bool, error)

	// Dispatcher state machine edges.
	MarkQueued(ctx context.Context, id, taskRef string) error
	Complete(ctx context.Context, id, callRef string) error
	Requeue(ctx context.Context, id, dispatchErr string) error
	Fail(ctx context.Context, id, dispatchErr string) error

	// Cancel swaps pending|queued -> cancelled. Cancelling an already
	// cancelled record is a no-op success; cancelling a completed or failed
	// record returns domain.ErrInvalidState.
	Cancel(ctx context.Context, id string) error

	// Stats returns the per-status counts for date plus the pending backlog
	// from prior dates.
	Stats(ctx context.Context, date time.Time) (*domain.CallStats, error)

	// DeleteTerminalOlderThan removes terminal records created before the
	// cutoff. Pending and queued records are never touched.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
