// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDo_ImmediateSuccess(t *testing.T) {
	rec := &recordingSleeper{}
	calls := 0

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: time.Second, IsRetryable: isTransient, Sleep: rec.sleep},
		func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1, 1", attempts, calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %d times, want 0", len(rec.delays))
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	rec := &recordingSleeper{}
	calls := 0

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: 3 * time.Second, IsRetryable: isTransient, Sleep: rec.sleep},
		func(ctx context.Context, attempt int) error {
			calls++
			if attempt != calls {
				t.Errorf("attempt = %d, want %d", attempt, calls)
			}
			return errTransient
		})

	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, errTransient) {
		t.Error("exhausted error should unwrap to the last attempt error")
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 5 {
		t.Errorf("ExhaustedError = %+v", ex)
	}
	if attempts != 5 || calls != 5 {
		t.Errorf("attempts = %d, calls = %d, want 5, 5", attempts, calls)
	}
	if len(rec.delays) != 4 {
		t.Fatalf("slept %d times, want 4 (only between attempts)", len(rec.delays))
	}
	for i, d := range rec.delays {
		if d != 3*time.Second {
			t.Errorf("delay[%d] = %v, want fixed 3s", i, d)
		}
	}
}

func TestDo_NonRetryableStops(t *testing.T) {
	rec := &recordingSleeper{}
	fatal := errors.New("fatal")

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 5, IsRetryable: isTransient, Sleep: rec.sleep},
		func(ctx context.Context, attempt int) error {
			if attempt == 1 {
				return errTransient
			}
			return fatal
		})

	if !errors.Is(err, fatal) || errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want fatal", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var retried []int
	attempts, err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		IsRetryable: isTransient,
		Sleep:       (&recordingSleeper{}).sleep,
		OnRetry:     func(attempt int, err error) { retried = append(retried, attempt) },
	}, func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil || attempts != 3 {
		t.Fatalf("Do() = %d, %v, want 3, nil", attempts, err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDo_NilIsRetryableNeverRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3}, func(ctx context.Context, attempt int) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestDo_DefaultsMaxAttempts(t *testing.T) {
	calls := 0
	Do(context.Background(), Policy{IsRetryable: isTransient, Sleep: (&recordingSleeper{}).sleep},
		func(ctx context.Context, attempt int) error {
			calls++
			return errTransient
		})
	if calls != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", calls, DefaultMaxAttempts)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy(isTransient)
	if p.MaxAttempts != DefaultMaxAttempts || p.Delay != DefaultDelay {
		t.Fatalf("DefaultPolicy = {MaxAttempts: %d, Delay: %s}, want {%d, %s}",
			p.MaxAttempts, p.Delay, DefaultMaxAttempts, DefaultDelay)
	}

	rec := &recordingSleeper{}
	p.Sleep = rec.sleep
	attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		return errTransient
	})
	if !errors.Is(err, errTransient) || attempts != DefaultMaxAttempts {
		t.Errorf("Do() = (%d, %v), want (%d, %v)", attempts, err, DefaultMaxAttempts, errTransient)
	}
	if len(rec.delays) != DefaultMaxAttempts-1 {
		t.Fatalf("slept %d times, want %d", len(rec.delays), DefaultMaxAttempts-1)
	}
	for i, d := range rec.delays {
		if d != DefaultDelay {
			t.Errorf("delay[%d] = %s, want %s", i, d, DefaultDelay)
		}
	}
}

func TestDo_ContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, Policy{MaxAttempts: 5, Delay: time.Hour, IsRetryable: isTransient},
		func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errTransient
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSleep(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Sleep returned early")
	}
}
