package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process dispatch queue used by tests. Delayed items
// are held with an explicit ready time instead of a sleeping goroutine, so
// tests can assert on retry timing and force delivery without waiting.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []memoryItem
	notify chan struct{}
}

type memoryItem struct {
	msg     Message
	readyAt time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, scheduledCallID string, delay time.Duration) (string, error) {
	msg := Message{
		ID:              uuid.NewString(),
		ScheduledCallID: scheduledCallID,
		EnqueuedAt:      time.Now(),
	}

	q.mu.Lock()
	q.items = append(q.items, memoryItem{msg: msg, readyAt: msg.EnqueuedAt.Add(delay)})
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].readyAt.Before(q.items[j].readyAt)
	})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return msg.ID, nil
}

// Due pops and returns every item whose ready time is at or before now.
func (q *MemoryQueue) Due(now time.Time) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Message
	remaining := q.items[:0]
	for _, it := range q.items {
		if !it.readyAt.After(now) {
			due = append(due, it.msg)
		} else {
			remaining = append(remaining, it)
		}
	}
	q.items = remaining
	return due
}

// Len reports how many items are queued, due or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// NextReadyAt returns the earliest ready time, or zero when empty.
func (q *MemoryQueue) NextReadyAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return time.Time{}
	}
	return q.items[0].readyAt
}

func (q *MemoryQueue) Consume(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}

		for _, msg := range q.Due(time.Now()) {
			sem <- struct{}{}
			wg.Add(1)
			go func(m Message) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := handler(ctx, m); err != nil {
					// At-least-once: hand it back for another delivery.
					_, _ = q.Enqueue(ctx, m.ScheduledCallID, time.Second)
				}
			}(msg)
		}
	}
}
