// =============================================================================
// Price Sync - Retry Policy
// =============================================================================
//
// A pure backoff function plus a combinator that re-runs an operation while a
// predicate classifies its error as transient. Only the caller decides what is
// retryable; everything else propagates on the first failure.
//
// SCHEDULE:
//   The n-th retry (1-based) waits Base * 2^n plus a uniform jitter in
//   [0, MaxJitter). With the default one second base that is 2s, 4s, 8s...
//
// =============================================================================

package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is returned when every allowed attempt hit a retryable
// error. It deliberately does not wrap the last transient error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy configures Do.
type Policy struct {
	// Retries is the maximum number of retries after the first attempt.
	Retries int

	// Base is the unit multiplied by 2^attempt. Default: 1s.
	Base time.Duration

	// MaxJitter bounds the random extra delay. Default: 1s.
	MaxJitter time.Duration

	// Retryable reports whether err is transient. Nil means nothing is.
	Retryable func(err error) bool

	// OnRetry is called before each delay.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep and Jitter are replaceable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// Backoff returns the delay before the given 1-based retry.
func Backoff(base time.Duration, attempt int, jitter time.Duration) time.Duration {
	return base*time.Duration(1<<uint(attempt)) + jitter
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt >= p.Retries {
			return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt+1)
		}

		delay := Backoff(p.Base, attempt+1, p.Jitter(p.MaxJitter))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = time.Second
	}
	if p.MaxJitter <= 0 {
		p.MaxJitter = time.Second
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Jitter == nil {
		p.Jitter = uniformJitter
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(max)))
}
