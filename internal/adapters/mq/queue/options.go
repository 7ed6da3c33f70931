package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds how many notifications may wait for a worker.
// Enqueue reports false once the bound is reached.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithPartitions splits the queue into n channels keyed by siege id.
func WithPartitions(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.partitions = n
		}
	}
}
