// Package queue buffers inbound notifications between the HTTP surface and
// the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/metrics"

	"github.com/cespare/xxhash/v2"
)

const defaultQueueCapacity = 10_000

// Notification is the payload type flowing through the queue.
type Notification = model.Notification

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a notification to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, n Notification) bool

	// Dequeue returns the channel workers receive from. It is closed when
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Notification

	// Len returns the current number of queued notifications.
	Len(ctx context.Context) int

	// Close stops accepting notifications.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with buffered channels. With more than one
// partition, notifications are routed by siege id so one siege's
// notifications always share a channel and keep their submission order.
type InMemoryQueue struct {
	parts      []chan Notification
	capacity   int
	partitions int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
// The capacity is split evenly over the partitions.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity, partitions: 1}
	for _, opt := range opts {
		opt(q)
	}
	per := (q.capacity + q.partitions - 1) / q.partitions
	q.parts = make([]chan Notification, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan Notification, per)
	}

	metrics.UpdateQueueCapacity(per * q.partitions)
	metrics.UpdateQueueSize(0)
	return q
}

// partition picks the channel for a siege.
func (q *InMemoryQueue) partition(siegeID string) chan Notification {
	if len(q.parts) == 1 {
		return q.parts[0]
	}
	return q.parts[xxhash.Sum64String(siegeID)%uint64(len(q.parts))]
}

// Enqueue adds a notification to its siege's partition.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n Notification) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.partition(n.SiegeID) <- n:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(q.size())
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the first partition's channel, which is the whole queue
// when it is not partitioned.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Notification {
	return q.parts[0]
}

// Partitions returns the number of partitions.
func (q *InMemoryQueue) Partitions() int { return len(q.parts) }

// Partition returns the channel of partition i.
func (q *InMemoryQueue) Partition(i int) <-chan Notification {
	return q.parts[i]
}

// Len returns the current number of queued notifications.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := q.size()
	metrics.UpdateQueueSize(size)
	return size
}

func (q *InMemoryQueue) size() int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	return n
}

// Close stops accepting notifications. Queued ones are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
