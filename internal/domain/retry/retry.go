// Package retry implements bounded retry with exponential backoff around a
// fallible operation. It knows nothing about jobs, products, or storage.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyExhausted is returned when every attempt produced an empty result and
// the policy asked for empty results to be retried.
var ErrEmptyExhausted = errors.New("all attempts returned an empty result")

// Policy configures bounded retry with exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// RetryOnEmpty controls whether a nil result (with nil error) counts as a
	// retryable failure. When false, an empty result is returned immediately.
	RetryOnEmpty bool
}

// DefaultPolicy mirrors the scrape pipeline defaults: three attempts, 5s
// initial delay, doubling between attempts, retrying empty results.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		Factor:       2,
		RetryOnEmpty: true,
	}
}

func (p Policy) sanitized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// SleepFunc sleeps for d or returns early with the context's error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy. The zero value is not usable;
// construct with New.
type Executor struct {
	policy Policy
	sleep  SleepFunc
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleep overrides the sleep function. Tests use this to observe delays
// without waiting for them.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New constructs an Executor with the given policy.
func New(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy.sanitized(),
		sleep:  contextSleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's sanitized policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Result carries the outcome of Do along with the number of attempts made.
type Result[T any] struct {
	Value    *T
	Attempts int
}

// Do invokes op up to MaxAttempts times. A returned error or (when
// RetryOnEmpty is set) a nil value is treated as a retryable failure; between
// attempts it sleeps InitialDelay * Factor^(attempt-1).
//
// After exhaustion it returns the last error, or ErrEmptyExhausted when every
// failure was an empty result. When RetryOnEmpty is false an empty result is
// returned to the caller without error. Do blocks the calling goroutine for
// the whole retry window; a worker holding a job is occupied for the duration,
// which is the intended backpressure.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (*T, error)) (Result[T], error) {
	p := e.policy
	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result[T]{Attempts: attempt - 1}, ctxErr
		}

		value, err := op(ctx)
		switch {
		case err != nil:
			lastErr = err
		case value == nil && !p.RetryOnEmpty:
			return Result[T]{Attempts: attempt}, nil
		case value != nil:
			return Result[T]{Value: value, Attempts: attempt}, nil
		default:
			// empty result, retryable per policy; keep any earlier fault as
			// the error to surface on exhaustion
		}

		if attempt >= p.MaxAttempts {
			if lastErr != nil {
				return Result[T]{Attempts: attempt}, fmt.Errorf("all %d attempts failed: %w", p.MaxAttempts, lastErr)
			}
			return Result[T]{Attempts: attempt}, ErrEmptyExhausted
		}

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return Result[T]{Attempts: attempt}, sleepErr
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
}
