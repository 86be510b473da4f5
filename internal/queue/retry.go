package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds attempts for one job, waiting Delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Run calls op until it succeeds, the attempts are used up, or ctx is done.
// op receives the 1-based attempt number. The number of attempts made is
// returned together with the last error.
func (p RetryPolicy) Run(ctx context.Context, op func(attempt int) error) (int, error) {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, op(attempt)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.attempts())),
		backoff.WithMaxElapsedTime(0),
	)
	return attempt, err
}
