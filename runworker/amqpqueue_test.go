package runworker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"

	"compliance.evalgo.org/queue"
)

func newTestAMQPQueue(t *testing.T) (*AMQPQueue, *queue.MockAMQPChannel) {
	t.Helper()
	dialer, mockChannel, _ := queue.SetupMockDialerForTest()
	mockChannel.Deliveries = make(chan amqp.Delivery, 4)
	q, err := newAMQPQueueWithDialer("amqp://test", "run-execution", dialer)
	if err != nil {
		t.Fatalf("newAMQPQueueWithDialer: %v", err)
	}
	return q, mockChannel
}

func TestAMQPQueueDequeueDecodesPayload(t *testing.T) {
	q, mockChannel := newTestAMQPQueue(t)

	body, _ := json.Marshal(RunExecutionPayload{RunID: 7, TenantID: "tenant-a", CompanyID: 3})
	mockChannel.Deliveries <- amqp.Delivery{Body: body}

	payload, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if payload == nil || payload.RunID != 7 || payload.TenantID != "tenant-a" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAMQPQueueDequeueTimesOutWithNilPayload(t *testing.T) {
	q, _ := newTestAMQPQueue(t)

	payload, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected no error on timeout, got %v", err)
	}
	if payload != nil {
		t.Fatalf("expected nil payload on timeout, got %+v", payload)
	}
}

func TestAMQPQueueEnqueuePublishesJSONBody(t *testing.T) {
	dialer, mockChannel, _ := queue.SetupMockDialerForTest()
	mockChannel.Deliveries = make(chan amqp.Delivery, 1)
	q, err := newAMQPQueueWithDialer("amqp://test", "run-execution", dialer)
	if err != nil {
		t.Fatalf("newAMQPQueueWithDialer: %v", err)
	}

	if err := q.Enqueue(RunExecutionPayload{RunID: 42, TenantID: "tenant-b"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !mockChannel.PublishCalled {
		t.Fatal("expected Publish to be called")
	}
	if len(mockChannel.PublishedMessages) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(mockChannel.PublishedMessages))
	}
	var decoded RunExecutionPayload
	if err := json.Unmarshal(mockChannel.PublishedMessages[0].Body, &decoded); err != nil {
		t.Fatalf("decode published body: %v", err)
	}
	if decoded.RunID != 42 || decoded.TenantID != "tenant-b" {
		t.Fatalf("unexpected decoded payload: %+v", decoded)
	}
}

func TestAMQPQueueAckAndNackAreNoOpsForUnknownPayload(t *testing.T) {
	q, _ := newTestAMQPQueue(t)

	unknown := &RunExecutionPayload{RunID: 99}
	if err := q.Ack(unknown); err != nil {
		t.Fatalf("expected no error acking unknown payload, got %v", err)
	}
	if err := q.Nack(unknown, true); err != nil {
		t.Fatalf("expected no error nacking unknown payload, got %v", err)
	}
}
