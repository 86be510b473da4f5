package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dispatcher turns sync requests into jobs on a queue.
type Dispatcher struct {
	queue Queue
	now   func() time.Time
}

func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{queue: q, now: time.Now}
}

func (d *Dispatcher) Dispatch(ctx context.Context, localUserID, subject string, data map[string]any) error {
	job := Job{
		ID:              uuid.NewString(),
		Queue:           d.queue.Name(),
		LocalUserID:     localUserID,
		ProviderSubject: subject,
		Data:            data,
		EnqueuedAt:      d.now().UTC(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job on %s: %w", d.queue.Name(), err)
	}
	return nil
}
