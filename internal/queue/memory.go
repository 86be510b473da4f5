package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue backed by a buffered channel. Jobs are
// lost on restart.
type MemoryQueue struct {
	name string
	ch   chan Job

	once   sync.Once
	closed chan struct{}
}

func NewMemoryQueue(name string, size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{name: name, ch: make(chan Job, size), closed: make(chan struct{})}
}

func (q *MemoryQueue) Name() string { return q.name }

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-q.closed:
		return Job{}, ErrClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.ch) }

// Close stops the queue. Buffered jobs are dropped.
func (q *MemoryQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}
