// Package retry provides an explicit, testable retry policy.
package retry

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes a bounded exponential-backoff retry.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// Retryable decides whether err warrants another attempt. Nil retries every error.
	Retryable func(err error) bool
	// Sleep is replaced in tests with a fake clock.
	Sleep SleepFunc
}

// Default returns the credential-exchange policy: 3 attempts, 5s initial
// delay, doubling per attempt.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Multiplier:  2,
		Sleep:       Sleep,
	}
}

// Do calls fn until it succeeds, the error is not retryable, attempts run
// out, or ctx is cancelled. The last error from fn is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay = p.next(delay)
	}
	return err
}

// Delays lists the waits Do would perform between attempts.
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	d := p.BaseDelay
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, d)
		d = p.next(d)
	}
	return out
}

func (p Policy) next(d time.Duration) time.Duration {
	m := p.Multiplier
	if m <= 0 {
		m = 1
	}
	return time.Duration(float64(d) * m)
}

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
