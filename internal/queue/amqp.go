package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dispatchExchange = "outdialer.dispatch"

	// readyQueue feeds the dispatcher workers. waitQueue holds delayed
	// items: messages are published there with a per-message TTL and
	// dead-letter into readyQueue when it expires.
	readyQueue = "dispatch.ready"
	waitQueue  = "dispatch.wait"

	readyRoutingKey = "ready"
	waitRoutingKey  = "wait"
)

// AMQPQueue is the durable dispatch queue backed by RabbitMQ. It implements
// both Enqueuer and Consumer.
//
// Per-message TTL expires in queue order, so a short delay behind a long one
// waits for the long one. Admission delays grow monotonically within a batch
// and retries use a single configured delay, so ordering holds in practice.
type AMQPQueue struct {
	conn   *amqp.Connection
	logger *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPQueue(url string, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q := &AMQPQueue{conn: conn, ch: ch, logger: logger.With("component", "amqp_queue")}
	if err := q.declareTopology(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) declareTopology() error {
	if err := q.ch.ExchangeDeclare(dispatchExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := q.ch.QueueDeclare(readyQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare ready queue: %w", err)
	}
	if err := q.ch.QueueBind(readyQueue, readyRoutingKey, dispatchExchange, false, nil); err != nil {
		return fmt.Errorf("bind ready queue: %w", err)
	}

	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    dispatchExchange,
		"x-dead-letter-routing-key": readyRoutingKey,
	}
	if _, err := q.ch.QueueDeclare(waitQueue, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("declare wait queue: %w", err)
	}
	if err := q.ch.QueueBind(waitQueue, waitRoutingKey, dispatchExchange, false, nil); err != nil {
		return fmt.Errorf("bind wait queue: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, scheduledCallID string, delay time.Duration) (string, error) {
	msg := Message{
		ID:              uuid.NewString(),
		ScheduledCallID: scheduledCallID,
		EnqueuedAt:      time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal dispatch message: %w", err)
	}

	routingKey := readyRoutingKey
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.EnqueuedAt,
		Body:         body,
	}
	if delay > 0 {
		routingKey = waitRoutingKey
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	q.mu.Lock()
	err = q.ch.PublishWithContext(ctx, dispatchExchange, routingKey, false, false, pub)
	q.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("publish dispatch message: %w", err)
	}

	q.logger.Debug("enqueued dispatch item",
		"scheduled_call_id", scheduledCallID,
		"task_ref", msg.ID,
		"delay", delay,
	)
	return msg.ID, nil
}

func (q *AMQPQueue) Consume(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := q.ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := q.ch.Consume(readyQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					q.handleDelivery(ctx, raw, handler)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, raw amqp.Delivery, handler Handler) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		q.logger.Error("unmarshal dispatch message", "error", err, "body", string(raw.Body))
		// Malformed payload will never parse; drop it.
		_ = raw.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		q.logger.Error("dispatch handler failed, requeueing",
			"task_ref", msg.ID,
			"scheduled_call_id", msg.ScheduledCallID,
			"error", err,
		)
		_ = raw.Nack(false, true)
		return
	}
	_ = raw.Ack(false)
}

func (q *AMQPQueue) Ping(_ context.Context) error {
	if q.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	return q.conn.Close()
}
