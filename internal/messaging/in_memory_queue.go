package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is both the Publisher and Reciever when the server runs
// without a broker.
type InMemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
}

var (
	_ Publisher = (*InMemoryQueue)(nil)
	_ Reciever  = (*InMemoryQueue)(nil)
)

func NewInMemoryQueue(capacity int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, capacity),
	}
}

func (q *InMemoryQueue) publishTaskInternal(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- &inMemoryTask{queue: queue, payload: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) PublishUsageRecord(ctx context.Context, payload UsageRecordPayload) error {
	return q.publishTaskInternal(ctx, UsageQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}
