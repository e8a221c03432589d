// Package retry implements bounded exponential-backoff retry with jitter,
// grounded on the teacher's llm/retry package. Constants match spec §4.1
// exactly: D0=1s, multiplier=2, Dmax=30s, attempts=3, jitter=±25%.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// RateLimitedInitialDelay overrides InitialDelay for the first retry
	// after a rate_limited error, per spec §7 "retryable (with longer
	// initial delay)".
	RateLimitedInitialDelay time.Duration
}

// DefaultPolicy matches spec §4.1 defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:             3,
		InitialDelay:            1 * time.Second,
		MaxDelay:                30 * time.Second,
		Multiplier:              2.0,
		Jitter:                  true,
		RateLimitedInitialDelay: 5 * time.Second,
	}
}

// ClassifyFunc reports whether an error returned by Do's operation is
// retryable at all (maps to canon.IsRetryable in callers) and whether it
// is a rate-limit error (selects RateLimitedInitialDelay for the first
// delay).
type ClassifyFunc func(err error) (retryable, rateLimited bool)

func (p Policy) delay(attempt int, rateLimited bool) time.Duration {
	base := p.InitialDelay
	if attempt == 1 && rateLimited && p.RateLimitedInitialDelay > 0 {
		base = p.RateLimitedInitialDelay
	}
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if cap := float64(p.MaxDelay); p.MaxDelay > 0 && d > cap {
		d = cap
	}
	if p.Jitter {
		// ±25%
		jitter := (rand.Float64()*2 - 1) * d * 0.25
		d += jitter
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// Do runs op, retrying per p until it succeeds, a non-retryable error is
// returned, or MaxAttempts is exhausted. classify determines retryability;
// a nil classify treats every non-nil error as retryable.
func Do(ctx context.Context, p Policy, classify ClassifyFunc, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			rateLimited := false
			if classify != nil {
				_, rateLimited = classify(lastErr)
			}
			d := p.delay(attempt-1, rateLimited)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		retryable := true
		if classify != nil {
			retryable, _ = classify(err)
		}
		if !retryable {
			return err
		}
	}
	return lastErr
}
