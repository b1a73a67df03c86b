package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
)

func newTestOrchestrator(dir *fakeDirectory, repo *fakeCallRepo, cfg domain.SchedulerConfig) (*Orchestrator, *fakeEnqueuer) {
	enq := &fakeEnqueuer{}
	sel := NewSelector(dir, repo, slog.Default())
	return NewOrchestrator(sel, repo, &fakeConfigRepo{cfg: cfg}, enq, slog.Default()), enq
}

func TestRunBatch_CreatesPendingCallsAndEnqueues(t *testing.T) {
	dir := &fakeDirectory{
		expiring: []*domain.ExpiringPolicy{policy("c1", 3), policy("c2", 8)},
	}
	repo := newFakeCallRepo()
	o, enq := newTestOrchestrator(dir, repo, domain.DefaultSchedulerConfig())

	summary, err := o.RunBatch(context.Background(), 30, 50)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if summary.TotalCandidates != 2 || summary.Created != 2 || summary.SkippedDuplicate != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	call := repo.byCustomer("c1")
	if call == nil {
		t.Fatal("no scheduled call created for c1")
	}
	if call.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", call.Status)
	}
	if call.Reason != domain.ReasonExpiringPolicy {
		t.Errorf("expected reason expiring_policy, got %s", call.Reason)
	}
	if call.Priority != 3 {
		t.Errorf("expected priority 3 (days to expiry), got %d", call.Priority)
	}
	if call.MaxRetries != 3 {
		t.Errorf("expected max retries from config, got %d", call.MaxRetries)
	}

	if got := len(enq.all()); got != 2 {
		t.Fatalf("expected 2 enqueued items, got %d", got)
	}
}

func TestRunBatch_RespectsMaxCallsPerDay(t *testing.T) {
	dir := &fakeDirectory{
		expiring: []*domain.ExpiringPolicy{
			policy("c1", 1), policy("c2", 2), policy("c3", 3), policy("c4", 4),
		},
	}
	o, _ := newTestOrchestrator(dir, newFakeCallRepo(), domain.DefaultSchedulerConfig())

	summary, err := o.RunBatch(context.Background(), 30, 2)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if summary.Created != 2 {
		t.Fatalf("expected 2 created, got %d", summary.Created)
	}
}

func TestRunBatch_SkipsDuplicateWithoutFailing(t *testing.T) {
	dir := &fakeDirectory{
		expiring: []*domain.ExpiringPolicy{policy("c1", 3), policy("c2", 8)},
	}
	repo := newFakeCallRepo()
	// The selector's HasActiveForDate normally filters c1 out; force the
	// unique-index collision path, as if a concurrent run inserted between
	// the selector's check and our create.
	repo.createFn = func(_ context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error) {
		if call.CustomerID == "c1" {
			return nil, domain.ErrAlreadyScheduled
		}
		return repo.defaultCreate(call)
	}
	o, enq := newTestOrchestrator(dir, repo, domain.DefaultSchedulerConfig())

	summary, err := o.RunBatch(context.Background(), 30, 50)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if summary.SkippedDuplicate != 1 {
		t.Errorf("expected 1 duplicate skipped, got %d", summary.SkippedDuplicate)
	}
	if summary.Created != 1 {
		t.Errorf("expected 1 created, got %d", summary.Created)
	}
	if got := len(enq.all()); got != 1 {
		t.Errorf("expected 1 enqueued item, got %d", got)
	}
}

func TestRunBatch_AdmissionDelaysComeInWaves(t *testing.T) {
	dir := &fakeDirectory{
		expiring: []*domain.ExpiringPolicy{
			policy("c1", 1), policy("c2", 2), policy("c3", 3),
			policy("c4", 4), policy("c5", 5),
		},
	}
	cfg := domain.DefaultSchedulerConfig()
	cfg.MaxConcurrentCalls = 2
	o, enq := newTestOrchestrator(dir, newFakeCallRepo(), cfg)

	if _, err := o.RunBatch(context.Background(), 30, 50); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	want := []time.Duration{0, 0, admissionWave, admissionWave, 2 * admissionWave}
	items := enq.all()
	if len(items) != len(want) {
		t.Fatalf("expected %d enqueued items, got %d", len(want), len(items))
	}
	for i, item := range items {
		if item.delay != want[i] {
			t.Errorf("item %d: expected delay %v, got %v", i, want[i], item.delay)
		}
	}
}

func TestAdmissionDelay(t *testing.T) {
	cases := []struct {
		position, maxConcurrent int
		want                    time.Duration
	}{
		{0, 5, 0},
		{4, 5, 0},
		{5, 5, admissionWave},
		{9, 5, admissionWave},
		{10, 5, 2 * admissionWave},
		{3, 0, 3 * admissionWave}, // degenerate cap clamps to 1
	}
	for _, tc := range cases {
		if got := admissionDelay(tc.position, tc.maxConcurrent); got != tc.want {
			t.Errorf("admissionDelay(%d, %d) = %v, want %v", tc.position, tc.maxConcurrent, got, tc.want)
		}
	}
}
