// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry provides a bounded retry combinator with fixed backoff.
//
// It is used to poll asynchronous backend work (OCR results) but carries no
// knowledge of what is being retried: the caller decides which errors are
// transient through Policy.IsRetryable.
//
//	attempts, err := retry.Do(ctx, retry.Policy{
//	    MaxAttempts: 5,
//	    Delay:       3 * time.Second,
//	    IsRetryable: func(err error) bool { return errors.Is(err, backend.ErrNotReady) },
//	}, func(ctx context.Context, attempt int) error {
//	    text, err = client.FetchOCRResult(ctx, fileID)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the attempt budget used when Policy.MaxAttempts is unset.
	DefaultMaxAttempts = 5

	// DefaultDelay is the wait between attempts used by DefaultPolicy.
	DefaultDelay = 3 * time.Second
)

// ErrExhausted matches (via errors.Is) the error returned when every attempt
// failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError is returned by Do when the attempt budget ran out.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted.Error(), e.Attempts, e.Last)
}

// Unwrap exposes the last retryable error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is makes errors.Is(err, ErrExhausted) report true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Policy parameterizes Do.
type Policy struct {
	// MaxAttempts bounds the number of calls (default: 5)
	MaxAttempts int

	// Delay is the fixed wait between two attempts
	Delay time.Duration

	// IsRetryable reports whether an error should trigger another attempt.
	// A nil IsRetryable never retries.
	IsRetryable func(err error) bool

	// Sleep waits between attempts (default: Sleep)
	Sleep Sleeper

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the OCR polling policy: 5 attempts, 3s apart.
func DefaultPolicy(isRetryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		IsRetryable: isRetryable,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The delay is only waited between attempts, never
// after the last one. It returns the number of attempts made.
//
// Exhaustion returns an *ExhaustedError; a canceled context while waiting
// returns the context error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if p.IsRetryable == nil || !p.IsRetryable(err) {
			return attempt, err
		}
		last = err

		if attempt == maxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Last: last}
}
