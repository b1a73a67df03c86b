// Package queue carries dispatch work items from the orchestrator to the
// dispatcher workers. Delivery is at-least-once; consumers rely on the
// scheduled-call status CAS to make redelivery a no-op.
package queue

import (
	"context"
	"time"
)

// Message is one dispatch work item. ID doubles as the scheduled call's
// dispatch_task_ref.
type Message struct {
	ID              string    `json:"id"`
	ScheduledCallID string    `json:"scheduled_call_id"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// Enqueuer is the producer side of the dispatch queue. A non-zero delay
// defers delivery; retries and admission control both use it.
type Enqueuer interface {
	Enqueue(ctx context.Context, scheduledCallID string, delay time.Duration) (taskRef string, err error)
}

// Handler processes one delivered message. A non-nil error requeues the
// message for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Consumer delivers messages to a handler with bounded concurrency until ctx
// is cancelled.
type Consumer interface {
	Consume(ctx context.Context, concurrency int, handler Handler) error
}
