// Package backoff provides a bounded multiplicative retry helper whose sleeps
// go through an injected Sleeper so callers can be tested without waiting.
package backoff

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy describes a bounded retry schedule: the n-th wait is
// BaseDelay * Multiplier^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultLookupPolicy is the directory lookup schedule: 8 attempts starting at 500ms, x1.3, capped at 2s.
var DefaultLookupPolicy = Policy{
	MaxAttempts: 8,
	BaseDelay:   500 * time.Millisecond,
	Multiplier:  1.3,
	MaxDelay:    2 * time.Second,
}

// StartupPolicy covers process bring-up of migrations and the database pool:
// 5 attempts starting at 2s, doubling, capped at 30s.
var StartupPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   2 * time.Second,
	Multiplier:  2,
	MaxDelay:    30 * time.Second,
}

// DelayFor returns the wait after the given failed attempt (1-based).
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if raw > float64(p.MaxDelay) || raw <= 0 {
		return p.MaxDelay
	}
	return time.Duration(raw)
}

// Backoff returns a fresh go-retry schedule for one operation. It yields
// MaxAttempts-1 waits and then stops.
func (p Policy) Backoff() retry.Backoff {
	attempt := 0
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return p.DelayFor(attempt), false
	})
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.WithCappedDuration(p.MaxDelay, next))
}

// Sleeper pauses between attempts. Sleep must return early with the context
// error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds or the policy is exhausted, sleeping between
// attempts. It returns nil on success, the last error from fn on exhaustion,
// or a context error (wrapping the last error's text) if ctx ends first.
func Do(ctx context.Context, p Policy, sleeper Sleeper, fn func(ctx context.Context, attempt int) error) error {
	b := p.Backoff()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		wait, stop := b.Next()
		if stop {
			return err
		}
		if serr := sleeper.Sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%w after attempt %d: %s", serr, attempt, err.Error())
		}
	}
}
