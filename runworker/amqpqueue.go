package runworker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"compliance.evalgo.org/queue"
)

// AMQPQueue adapts a RabbitMQ queue to the Queue interface, grounded on
// queue/rabbit.go's connect/channel/declare lifecycle and
// queue/amqp_interface.go's AMQPConnection/AMQPChannel abstraction
// (generalized here from that package's FlowProcessMessage publisher to
// this module's typed RunExecutionPayload consumer).
type AMQPQueue struct {
	connection queue.AMQPConnection
	channel    queue.AMQPChannel
	queueName  string
	deliveries <-chan amqp.Delivery

	mu      sync.Mutex
	pending map[*RunExecutionPayload]amqp.Delivery
}

// NewAMQPQueue connects to amqpURL, declares queueName as durable, and
// starts consuming from it.
func NewAMQPQueue(amqpURL, queueName string) (*AMQPQueue, error) {
	return newAMQPQueueWithDialer(amqpURL, queueName, &queue.RealAMQPDialer{})
}

func newAMQPQueueWithDialer(amqpURL, queueName string, dialer queue.AMQPDialer) (*AMQPQueue, error) {
	conn, err := dialer.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	return &AMQPQueue{
		connection: conn,
		channel:    ch,
		queueName:  queueName,
		deliveries: deliveries,
		pending:    map[*RunExecutionPayload]amqp.Delivery{},
	}, nil
}

// Enqueue publishes payload onto the queue as a durable, persistent
// message, the producer-side counterpart to Dequeue. The control plane
// calls this to hand a run off for asynchronous execution (spec.md §5).
func (q *AMQPQueue) Enqueue(payload RunExecutionPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode run execution payload: %w", err)
	}
	return q.channel.Publish("", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Dequeue blocks up to timeout for the next delivery, decodes its JSON
// body into a RunExecutionPayload, and returns it. Returns (nil, nil) on
// timeout, matching worker/pool.go's Queue.Dequeue contract.
func (q *AMQPQueue) Dequeue(ctx context.Context, timeout time.Duration) (*RunExecutionPayload, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return nil, fmt.Errorf("amqp delivery channel closed")
		}
		var payload RunExecutionPayload
		if err := json.Unmarshal(delivery.Body, &payload); err != nil {
			_ = delivery.Nack(false, false)
			return nil, fmt.Errorf("decode run execution payload: %w", err)
		}
		q.mu.Lock()
		q.pending[&payload] = delivery
		q.mu.Unlock()
		return &payload, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// Ack acknowledges payload's underlying delivery.
func (q *AMQPQueue) Ack(payload *RunExecutionPayload) error {
	delivery, ok := q.takePending(payload)
	if !ok {
		return nil
	}
	return delivery.Ack(false)
}

// Nack negatively acknowledges payload's underlying delivery, requeueing
// it when requeue is true.
func (q *AMQPQueue) Nack(payload *RunExecutionPayload, requeue bool) error {
	delivery, ok := q.takePending(payload)
	if !ok {
		return nil
	}
	return delivery.Nack(false, requeue)
}

func (q *AMQPQueue) takePending(payload *RunExecutionPayload) (amqp.Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delivery, ok := q.pending[payload]
	if ok {
		delete(q.pending, payload)
	}
	return delivery, ok
}

// Close releases the underlying channel and connection.
func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.connection != nil {
		q.connection.Close()
	}
	return nil
}
