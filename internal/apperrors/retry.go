package apperrors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry configuration. Jitter is kept below the doubling factor so
// successive delays are strictly increasing until the cap.
const (
	DefaultMaxAttempts429       = 5
	DefaultMaxAttemptsTransient = 4
	DefaultInitialDelay         = 500 * time.Millisecond
	DefaultMaxDelay             = 30 * time.Second
	retryMultiplier             = 2.0
	retryJitter                 = 0.25
)

// Marker wrappers used by callers to classify a failure before handing it to
// the retry policy. Anything not wrapped is treated as permanent.

type rateLimitedErr struct{ err error }

func (e *rateLimitedErr) Error() string { return fmt.Sprintf("rate limited: %v", e.err) }
func (e *rateLimitedErr) Unwrap() error { return e.err }

type transientErr struct{ err error }

func (e *transientErr) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientErr) Unwrap() error { return e.err }

// RetryableRateLimit marks err as a 429-class failure, retried under the
// rate-limit budget.
func RetryableRateLimit(err error) error {
	return &rateLimitedErr{err: err}
}

// RetryableTransient marks err as a 5xx/network-class failure, retried under
// the transient budget.
func RetryableTransient(err error) error {
	return &transientErr{err: err}
}

// RetryPolicy retries an operation with exponential backoff and jitter.
// Rate-limit (429) and transient (5xx/timeout) failures are capped
// separately; every other error escalates immediately. Counters live inside
// a single Do call, so one slow request never penalizes the next.
type RetryPolicy struct {
	MaxAttempts429       int
	MaxAttemptsTransient int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	Logger               *slog.Logger

	// Sleep is overridable for tests; nil means a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy returns a policy with the default budgets.
func NewRetryPolicy(logger *slog.Logger) *RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryPolicy{
		MaxAttempts429:       DefaultMaxAttempts429,
		MaxAttemptsTransient: DefaultMaxAttemptsTransient,
		InitialDelay:         DefaultInitialDelay,
		MaxDelay:             DefaultMaxDelay,
		Logger:               logger,
	}
}

// Do executes op until it succeeds, exhausts its class budget, or fails
// permanently. Exhausting the 429 budget yields a *RateLimitError,
// exhausting the transient budget a *TransientError.
func (p *RetryPolicy) Do(ctx context.Context, op func() error) error {
	delays := p.newBackoff()

	attempts429 := 0
	attemptsTransient := 0

	for {
		err := op()
		if err == nil {
			return nil
		}

		var rle *rateLimitedErr
		var tre *transientErr
		switch {
		case errors.As(err, &rle):
			attempts429++
			if attempts429 >= p.MaxAttempts429 {
				return &RateLimitError{Attempts: attempts429, Err: rle.err}
			}
		case errors.As(err, &tre):
			attemptsTransient++
			if attemptsTransient >= p.MaxAttemptsTransient {
				return &TransientError{Attempts: attemptsTransient, Err: tre.err}
			}
		default:
			return err
		}

		wait := delays.NextBackOff()
		if wait == backoff.Stop {
			wait = p.MaxDelay
		}

		p.Logger.Warn("request failed, retrying",
			"attempt_429", attempts429,
			"attempt_transient", attemptsTransient,
			"wait", wait,
			"error", err)

		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *RetryPolicy) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = retryJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
