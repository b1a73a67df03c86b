package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abakirov/outdialer/internal/caller"
	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/repository"
)

type fakeDirectory struct {
	expiring  []*domain.ExpiringPolicy
	lastCalls map[string]*time.Time
	counts    map[string]int
}

func (f *fakeDirectory) FindExpiring(_ context.Context, _ int) ([]*domain.ExpiringPolicy, error) {
	return f.expiring, nil
}

func (f *fakeDirectory) LastCallStartedAt(_ context.Context, customerID string) (*time.Time, error) {
	return f.lastCalls[customerID], nil
}

func (f *fakeDirectory) CallCount(_ context.Context, customerID string) (int, error) {
	return f.counts[customerID], nil
}

// fakeCallRepo keeps records in memory and mirrors the CAS semantics of the
// postgres implementation. Individual methods can be overridden per test.
type fakeCallRepo struct {
	mu    sync.Mutex
	calls map[string]*domain.ScheduledCall

	createFn     func(ctx context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error)
	markQueuedFn func(ctx context.Context, id, taskRef string) error
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[string]*domain.ScheduledCall)}
}

func (f *fakeCallRepo) Create(ctx context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error) {
	if f.createFn != nil {
		return f.createFn(ctx, call)
	}
	return f.defaultCreate(call)
}

func (f *fakeCallRepo) defaultCreate(call *domain.ScheduledCall) (*domain.ScheduledCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.calls {
		if existing.CustomerID == call.CustomerID &&
			existing.ScheduledDate.Equal(call.ScheduledDate) &&
			!existing.Status.Terminal() {
			return nil, domain.ErrAlreadyScheduled
		}
	}
	stored := *call
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.calls[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeCallRepo) GetByID(_ context.Context, id string) (*domain.ScheduledCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call, ok := f.calls[id]
	if !ok {
		return nil, domain.ErrCallNotFound
	}
	out := *call
	return &out, nil
}

func (f *fakeCallRepo) List(_ context.Context, _ repository.ListCallsInput) ([]*repository.ScheduledCallRow, error) {
	return nil, nil
}

func (f *fakeCallRepo) HasActiveForDate(_ context.Context, customerID string, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call.CustomerID == customerID && call.ScheduledDate.Equal(date) && !call.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCallRepo) swap(id string, from, to domain.Status, mutate func(*domain.ScheduledCall)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call, ok := f.calls[id]
	if !ok {
		return domain.ErrCallNotFound
	}
	if call.Status != from {
		return domain.ErrInvalidState
	}
	call.Status = to
	call.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(call)
	}
	return nil
}

func (f *fakeCallRepo) MarkQueued(ctx context.Context, id, taskRef string) error {
	if f.markQueuedFn != nil {
		return f.markQueuedFn(ctx, id, taskRef)
	}
	return f.swap(id, domain.StatusPending, domain.StatusQueued, func(c *domain.ScheduledCall) {
		c.DispatchTaskRef = &taskRef
	})
}

func (f *fakeCallRepo) Complete(_ context.Context, id, callRef string) error {
	return f.swap(id, domain.StatusQueued, domain.StatusCompleted, func(c *domain.ScheduledCall) {
		now := time.Now()
		c.ResultCallRef = &callRef
		c.ExecutedAt = &now
	})
}

func (f *fakeCallRepo) Requeue(_ context.Context, id, dispatchErr string) error {
	return f.swap(id, domain.StatusQueued, domain.StatusPending, func(c *domain.ScheduledCall) {
		c.RetryCount++
		c.LastError = &dispatchErr
	})
}

func (f *fakeCallRepo) Fail(_ context.Context, id, dispatchErr string) error {
	return f.swap(id, domain.StatusQueued, domain.StatusFailed, func(c *domain.ScheduledCall) {
		now := time.Now()
		c.LastError = &dispatchErr
		c.ExecutedAt = &now
	})
}

func (f *fakeCallRepo) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call, ok := f.calls[id]
	if !ok {
		return domain.ErrCallNotFound
	}
	switch call.Status {
	case domain.StatusCancelled:
		return nil
	case domain.StatusPending, domain.StatusQueued:
		call.Status = domain.StatusCancelled
		return nil
	default:
		return domain.ErrInvalidState
	}
}

func (f *fakeCallRepo) Stats(_ context.Context, _ time.Time) (*domain.CallStats, error) {
	return &domain.CallStats{}, nil
}

func (f *fakeCallRepo) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, call := range f.calls {
		if call.Status.Terminal() && call.CreatedAt.Before(cutoff) {
			delete(f.calls, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeCallRepo) byCustomer(customerID string) *domain.ScheduledCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call.CustomerID == customerID {
			out := *call
			return &out
		}
	}
	return nil
}

type fakeConfigRepo struct {
	cfg domain.SchedulerConfig
}

func (f *fakeConfigRepo) Get(_ context.Context) (*domain.SchedulerConfig, error) {
	out := f.cfg
	return &out, nil
}

func (f *fakeConfigRepo) Update(_ context.Context, patch domain.SchedulerConfigPatch) (*domain.SchedulerConfig, error) {
	if err := f.cfg.Apply(patch); err != nil {
		return nil, err
	}
	out := f.cfg
	return &out, nil
}

type enqueued struct {
	scheduledCallID string
	delay           time.Duration
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	items []enqueued
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, scheduledCallID string, delay time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, enqueued{scheduledCallID: scheduledCallID, delay: delay})
	return uuid.NewString(), nil
}

func (f *fakeEnqueuer) all() []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enqueued(nil), f.items...)
}

type fakeInitiator struct {
	fn func(ctx context.Context, customerID string, reason domain.Reason) (*caller.Result, error)
}

func (f *fakeInitiator) InitiateCall(ctx context.Context, customerID string, reason domain.Reason) (*caller.Result, error) {
	return f.fn(ctx, customerID, reason)
}
