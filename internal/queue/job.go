// Package queue runs user syncs in the background with bounded retries.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Enqueue and Dequeue after the queue is closed.
var ErrClosed = errors.New("queue closed")

// Job is a deferred sync request.
type Job struct {
	ID              string         `json:"id"`
	Queue           string         `json:"queue"`
	LocalUserID     string         `json:"local_user_id"`
	ProviderSubject string         `json:"keycloak_sub"`
	Data            map[string]any `json:"data"`
	EnqueuedAt      time.Time      `json:"enqueued_at"`
	// Attempts already spent on this job before it was requeued.
	Attempts int `json:"attempts,omitempty"`
}

// Queue is a named FIFO of jobs. Dequeue blocks until a job arrives or ctx is done.
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}
