package queue

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gogotex/usersync/internal/directory"
	"github.com/gogotex/usersync/internal/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDirectory fails the first `failures` upserts, then succeeds.
type flakyDirectory struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	subjects []string
}

func (d *flakyDirectory) CreateOrUpdateUser(ctx context.Context, localUserID, subject string, data map[string]any) (directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.subjects = append(d.subjects, subject)
	if d.calls <= d.failures {
		return nil, d.err
	}
	return directory.User{"id": "remote-" + localUserID}, nil
}

func (d *flakyDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var fastRetry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

func TestRetryPolicy_Run(t *testing.T) {
	n, err := fastRetry.Run(context.Background(), func(attempt int) error {
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	seen := []int{}
	n, err = fastRetry.Run(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		return errors.New("still down")
	})
	require.EqualError(t, err, "still down")
	require.Equal(t, 3, n)
	require.Equal(t, []int{1, 2, 3}, seen)

	n, err = RetryPolicy{}.Run(context.Background(), func(int) error { return errors.New("once") })
	require.Error(t, err)
	require.Equal(t, 1, n)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Delay: time.Hour}
	n, err := p.Run(ctx, func(int) error {
		cancel()
		return errors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, 1, n)
}

func TestTask_SucceedsAfterRetries(t *testing.T) {
	dir := &flakyDirectory{failures: 2, err: errors.New("connection refused")}
	rec := &events.Recorder{}
	task := NewTask(dir, rec, fastRetry)

	err := task.Execute(context.Background(), Job{LocalUserID: "1", ProviderSubject: "kc-1"})
	require.NoError(t, err)
	require.Equal(t, 3, dir.Calls())
	require.Len(t, rec.Succeeded(), 1)
	require.Equal(t, "remote-1", rec.Succeeded()[0].Response["id"])
	require.Empty(t, rec.Failed())
}

func TestTask_ExhaustionNotifiesOnce(t *testing.T) {
	herr := &directory.HTTPError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
	dir := &flakyDirectory{failures: 10, err: herr}
	rec := &events.Recorder{}
	task := NewTask(dir, rec, fastRetry)

	err := task.Execute(context.Background(), Job{LocalUserID: "1", ProviderSubject: "kc-1"})
	require.ErrorIs(t, err, herr)
	require.Equal(t, 3, dir.Calls())
	require.Empty(t, rec.Succeeded())
	require.Len(t, rec.Failed(), 1)
	f := rec.Failed()[0]
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, http.StatusBadGateway, f.Code)
	assert.Equal(t, "User Service error: bad gateway", f.Message)
}

func TestTask_RegistrationDisabledIsRetriedThenFails(t *testing.T) {
	dir := &flakyDirectory{failures: 10, err: &directory.RegistrationDisabledError{Subject: "kc-1"}}
	rec := &events.Recorder{}

	err := NewTask(dir, rec, RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}).Execute(context.Background(), Job{LocalUserID: "1", ProviderSubject: "kc-1"})
	require.Error(t, err)
	require.Equal(t, 2, dir.Calls())
	require.Equal(t, http.StatusForbidden, rec.Failed()[0].Code)
}

func TestTask_CancelledIsAbandonedWithoutNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := &flakyDirectory{failures: 10, err: errors.New("down")}
	rec := &events.Recorder{}

	err := NewTask(dir, rec, RetryPolicy{MaxAttempts: 3, Delay: time.Hour}).Execute(ctx, Job{LocalUserID: "1", ProviderSubject: "kc-1"})
	var aerr *AbandonedError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, 1, aerr.Attempts)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, rec.Failed())
	require.Empty(t, rec.Succeeded())
}

func TestTask_RequeuedJobKeepsAttemptBudget(t *testing.T) {
	dir := &flakyDirectory{failures: 10, err: errors.New("down")}
	rec := &events.Recorder{}

	err := NewTask(dir, rec, fastRetry).Execute(context.Background(), Job{LocalUserID: "1", ProviderSubject: "kc-1", Attempts: 2})
	require.Error(t, err)
	require.Equal(t, 1, dir.Calls())
	require.Len(t, rec.Failed(), 1)
	require.Equal(t, 3, rec.Failed()[0].Attempts)

	// an overspent budget still gets one attempt
	dir = &flakyDirectory{}
	require.NoError(t, NewTask(dir, rec, fastRetry).Execute(context.Background(), Job{LocalUserID: "1", ProviderSubject: "kc-1", Attempts: 7}))
	require.Equal(t, 1, dir.Calls())
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue("default", 2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Job{ID: "b"}))
	require.Equal(t, 2, q.Len())

	full, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Enqueue(full, Job{ID: "c"}), context.DeadlineExceeded)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", j.ID)
	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", j.ID)

	empty, cancel2 := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel2()
	_, err = q.Dequeue(empty)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	q.Close()
	q.Close()
	require.ErrorIs(t, q.Enqueue(ctx, Job{}), ErrClosed)
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestRedisQueue_FIFO(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "sync")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "1", LocalUserID: "7", Data: map[string]any{"email": "a@b.com"}}))
	require.NoError(t, q.Enqueue(ctx, Job{ID: "2"}))
	require.True(t, m.Exists("usersync:queue:sync"))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", j.ID)
	require.Equal(t, "a@b.com", j.Data["email"])
	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", j.ID)
}

func TestRedisQueue_DequeueHonoursCancel(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "sync")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = q.Dequeue(ctx)
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestDispatcher(t *testing.T) {
	q := NewMemoryQueue("users", 1)
	d := NewDispatcher(q)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.Dispatch(context.Background(), "9", "kc-9", map[string]any{"id": "kc-9"}))
	j, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	_, err = uuid.Parse(j.ID)
	require.NoError(t, err)
	require.Equal(t, "users", j.Queue)
	require.Equal(t, "9", j.LocalUserID)
	require.Equal(t, "kc-9", j.ProviderSubject)
	require.Equal(t, fixed, j.EnqueuedAt)

	q.Close()
	require.ErrorIs(t, d.Dispatch(context.Background(), "9", "kc-9", nil), ErrClosed)
}

func TestWorker_DrainsQueue(t *testing.T) {
	q := NewMemoryQueue("default", 10)
	dir := &flakyDirectory{}
	rec := &events.Recorder{}
	w := NewWorker(q, NewTask(dir, rec, fastRetry), 3)
	d := NewDispatcher(q)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for _, sub := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Dispatch(ctx, "1", sub, nil))
	}
	require.Eventually(t, func() bool { return len(rec.Succeeded()) == 4 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.Equal(t, 4, dir.Calls())
}

func TestWorker_StopsWhenQueueClosed(t *testing.T) {
	q := NewMemoryQueue("default", 1)
	w := NewWorker(q, NewTask(&flakyDirectory{}, nil, fastRetry), 2)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RequeuesJobInterruptedMidRetry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "sync")

	dir := &flakyDirectory{failures: 10, err: &directory.HTTPError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}}
	rec := &events.Recorder{}
	w := NewWorker(q, NewTask(dir, rec, RetryPolicy{MaxAttempts: 3, Delay: time.Minute}), 1)

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "j-1", LocalUserID: "7", ProviderSubject: "kc-7"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// first attempt failed; the worker now waits out the retry delay
	require.Eventually(t, func() bool { return dir.Calls() == 1 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Empty(t, rec.Failed())
	require.Empty(t, rec.Succeeded())
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	j, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "j-1", j.ID)
	require.Equal(t, "kc-7", j.ProviderSubject)
	require.Equal(t, 1, j.Attempts)
}
