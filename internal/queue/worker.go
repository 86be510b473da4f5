package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/usersync/pkg/logger"
)

// Worker drains a queue with a fixed number of goroutines.
type Worker struct {
	queue       Queue
	task        *Task
	concurrency int
	errDelay    time.Duration

	// requeueTimeout bounds the push-back of an abandoned job during shutdown.
	requeueTimeout time.Duration
}

func NewWorker(q Queue, task *Task, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{queue: q, task: task, concurrency: concurrency, errDelay: time.Second, requeueTimeout: 5 * time.Second}
}

// Run blocks until ctx is cancelled or the queue is closed, then waits for
// in-flight jobs to finish. Jobs interrupted by cancellation are put back on
// the queue.
func (w *Worker) Run(ctx context.Context) {
	logger.WithFields(logger.Fields{"queue": w.queue.Name(), "workers": w.concurrency}).Infof("sync worker started")
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	logger.WithFields(logger.Fields{"queue": w.queue.Name()}).Infof("sync worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, ErrClosed):
			return
		default:
			logger.Errorf("dequeue from %s failed: %v", w.queue.Name(), err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errDelay):
			}
			continue
		}
		// Execute reports its own outcome.
		var aerr *AbandonedError
		if err := w.task.Execute(ctx, job); errors.As(err, &aerr) {
			w.requeue(ctx, job, aerr.Attempts)
		}
	}
}

// requeue pushes an unfinished job back with its spent attempts recorded.
// ctx is already done, so the push runs on a detached, bounded context.
func (w *Worker) requeue(ctx context.Context, job Job, attempts int) {
	job.Attempts += attempts
	log := logger.WithFields(logger.Fields{"job_id": job.ID, "local_user_id": job.LocalUserID, "attempts": job.Attempts})

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.requeueTimeout)
	defer cancel()
	if err := w.queue.Enqueue(rctx, job); err != nil {
		log.Errorf("job: requeue on %s failed, sync lost: %v", w.queue.Name(), err)
		return
	}
	log.Warnf("job: requeued on %s after interruption", w.queue.Name())
}
