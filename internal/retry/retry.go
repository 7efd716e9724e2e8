// Package retry wraps fallible operations in a bounded exponential backoff
// and reports the outcome as a value instead of an error escaping the call site.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how many times and how patiently to retry.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // randomization factor in [0,1)
}

// DefaultPolicy is 3 attempts starting at one second and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(d.MaxDelay, p.BaseDelay)
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// Result is the tagged outcome of Do.
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Operation is one attempt; attempt counts from 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the policy's attempts are exhausted. Every failed attempt is logged.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, name string, op Operation[T]) Result[T] {
	if logger == nil {
		logger = slog.Default()
	}
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter

	attempts := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		return op(ctx, attempts)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(name+".retry",
				"attempt", attempts,
				"max_attempts", p.MaxAttempts,
				"next_in_ms", next.Milliseconds(),
				"error", err,
			)
		}),
	)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		logger.Error(name+".failed", "attempts", attempts, "error", err)
		return Result[T]{Value: v, Attempts: attempts, Err: err}
	}
	return Result[T]{Value: v, Attempts: attempts}
}
