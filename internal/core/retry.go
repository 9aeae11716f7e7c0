package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/go-github/v67/github"
)

// Retry policy for transient remote failures. Deterministic 4xx failures
// are never retried.
const (
	maxRetryAttempts  = 3
	retryInitialDelay = 1 * time.Second
	retryMaxDelay     = 30 * time.Second
)

// pollSchedule drives pollUntilReady: probe, sleep the interval, double
// it up to the cap, give up once the budget is spent.
type pollSchedule struct {
	initial time.Duration
	max     time.Duration
	budget  time.Duration
}

// Fork provisioning poll schedule: start at 2s, double to a 30s cap,
// give up after two minutes.
var forkPollSchedule = pollSchedule{
	initial: 2 * time.Second,
	max:     30 * time.Second,
	budget:  2 * time.Minute,
}

// retryWithBackoff runs fn up to maxRetryAttempts times, sleeping with
// exponential backoff between transient failures. Non-transient errors
// return immediately and unchanged; exhausting the budget wraps the last
// cause in a *RetryableError.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, operation string, fn func() (*github.Response, error)) error {
	delay := retryInitialDelay

	var (
		resp *github.Response
		err  error
	)

	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		resp, err = fn()
		if err == nil {
			return nil
		}

		if !isRetryable(err, resp) {
			return err
		}

		if attempt == maxRetryAttempts {
			break
		}

		logger.Warn("transient failure, retrying",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return &RetryableError{Operation: operation, Err: err, Attempts: maxRetryAttempts}
}

// pollOutcome is the typed result of a readiness poll.
type pollOutcome int

const (
	pollReady pollOutcome = iota
	pollTimedOut
)

// pollUntilReady invokes probe on the given schedule until it reports
// ready, the budget runs out, or the context is canceled. Probe errors
// other than "not yet" abort the poll.
func pollUntilReady(ctx context.Context, logger *slog.Logger, sched pollSchedule, probe func(context.Context) (bool, error)) (pollOutcome, error) {
	deadline := time.Now().Add(sched.budget)
	interval := sched.initial

	for {
		ready, err := probe(ctx)
		if err != nil {
			return pollTimedOut, err
		}

		if ready {
			return pollReady, nil
		}

		if time.Now().Add(interval).After(deadline) {
			return pollTimedOut, nil
		}

		logger.Debug("not ready, polling again",
			slog.Duration("interval", interval),
		)

		select {
		case <-ctx.Done():
			return pollTimedOut, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > sched.max {
			interval = sched.max
		}
	}
}
