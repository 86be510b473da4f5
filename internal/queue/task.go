package queue

import (
	"context"
	"fmt"

	"github.com/gogotex/usersync/internal/directory"
	"github.com/gogotex/usersync/internal/events"
	"github.com/gogotex/usersync/pkg/logger"
)

// Directory performs the remote upsert for a job.
type Directory interface {
	CreateOrUpdateUser(ctx context.Context, localUserID, subject string, data map[string]any) (directory.User, error)
}

// AbandonedError is returned by Execute when ctx ends before the job either
// succeeds or runs out of attempts. The job is unfinished and should be requeued.
type AbandonedError struct {
	Attempts int
	Err      error
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("job abandoned after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AbandonedError) Unwrap() error { return e.Err }

// Task executes sync jobs against the directory.
type Task struct {
	directory Directory
	notifier  events.Notifier
	policy    RetryPolicy
}

func NewTask(dir Directory, notifier events.Notifier, policy RetryPolicy) *Task {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Task{directory: dir, notifier: notifier, policy: policy}
}

// Execute upserts the job's user, retrying any error per the policy. Attempts
// spent before a requeue count against the budget. Success is notified once;
// exhaustion is notified with the total attempt count and the last error is
// returned. A cancelled ctx returns *AbandonedError without notification.
func (t *Task) Execute(ctx context.Context, job Job) error {
	log := logger.WithFields(logger.Fields{"local_user_id": job.LocalUserID, "keycloak_sub": job.ProviderSubject, "job_id": job.ID})

	policy := t.policy
	policy.MaxAttempts = max(t.policy.attempts()-job.Attempts, 1)

	attempts, err := policy.Run(ctx, func(attempt int) error {
		attempt += job.Attempts
		logger.WithFields(logger.Fields{"local_user_id": job.LocalUserID, "keycloak_sub": job.ProviderSubject, "attempt": attempt}).
			Infof("job: starting user sync")

		res, err := t.directory.CreateOrUpdateUser(ctx, job.LocalUserID, job.ProviderSubject, job.Data)
		if err != nil {
			log.Warnf("job: attempt %d failed: %v", attempt, err)
			return err
		}
		t.notifier.UserSynced(ctx, events.SyncSucceeded{LocalUserID: job.LocalUserID, ProviderSubject: job.ProviderSubject, Response: res})
		log.Infof("job: user sync completed")
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		log.Warnf("job: abandoned after %d attempts: %v", attempts, err)
		return &AbandonedError{Attempts: attempts, Err: err}
	}

	total := job.Attempts + attempts
	t.notifier.UserSyncFailed(ctx, events.SyncFailed{
		LocalUserID:     job.LocalUserID,
		ProviderSubject: job.ProviderSubject,
		Message:         err.Error(),
		Code:            directory.ErrorCode(err),
		Attempts:        total,
	})
	log.Errorf("job: user sync failed after %d attempts: %v", total, err)
	return err
}
