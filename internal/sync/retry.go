// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds retries of transient failures. Retry n (1-based) waits
// BaseDelay * 2^(n-1): 1s, 2s, 4s with the defaults.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep waits d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<uint(n-1))
}

// Schedule lists every delay the policy can produce.
func (p RetryPolicy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.MaxRetries)
	for n := 1; n <= p.MaxRetries; n++ {
		out = append(out, p.Delay(n))
	}
	return out
}

// Execute calls fn until it succeeds, fails with a non-transient error, or
// MaxRetries retries are used. attempt starts at 1. onRetry, when non-nil,
// is called before each wait.
func (p RetryPolicy) Execute(ctx context.Context, fn func(attempt int) error,
	onRetry func(attempt int, delay time.Duration, err error)) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%w (gave up: %v)", err, ctxErr)
			}
			return ctxErr
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt > p.MaxRetries {
			return err
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w (gave up: %v)", err, sleepErr)
		}
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
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
