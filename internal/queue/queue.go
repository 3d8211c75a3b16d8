package queue

import (
	"context"
	"sync"

	"github.com/cuongbtq/scan-service/internal/domain"
)

// Queue is an unbounded, thread-safe FIFO of jobs.
//
// Enqueue never blocks. Dequeue blocks until a job is available, the queue is
// closed, or the caller's context is canceled. There is no priority, no
// deduplication and no visibility timeout: redelivery only happens when a
// consumer enqueues the same job again.
type Queue struct {
	mu         sync.Mutex
	items      []*domain.Job
	ready      chan struct{}
	closed     bool
	unfinished int
}

// New creates an empty queue
func New() *Queue {
	return &Queue{
		ready: make(chan struct{}),
	}
}

// Enqueue appends job to the tail and returns its position (1-based) at the
// time of insertion
func (q *Queue) Enqueue(job *domain.Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, domain.ErrQueueClosed
	}

	q.items = append(q.items, job)
	q.unfinished++
	q.broadcastLocked()

	return len(q.items), nil
}

// Dequeue removes and returns the head job, blocking until one is available.
// It returns domain.ErrQueueClosed once ctx is done or Close has been called.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, domain.ErrQueueClosed
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return job, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, domain.ErrQueueClosed
		case <-ready:
		}
	}
}

// Done marks one dequeued item as fully handled
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished > 0 {
		q.unfinished--
	}
}

// Len returns the number of queued jobs
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished returns the number of enqueued items not yet marked Done
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Close stops the queue: blocked and future Dequeue calls return
// ErrQueueClosed and Enqueue is rejected. Close returns the jobs that were
// still waiting.
func (q *Queue) Close() []*domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	remaining := q.items
	q.items = nil
	// dropped jobs will never be marked Done
	q.unfinished -= len(remaining)
	q.broadcastLocked()

	return remaining
}

// broadcastLocked wakes every waiting consumer. Caller must hold q.mu.
func (q *Queue) broadcastLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}
