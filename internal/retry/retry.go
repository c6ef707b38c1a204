// Package retry is the single bounded-retry helper shared by speech
// initialization, per-utterance retry and broadcast redelivery.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. Initial == 0 retries immediately;
// Multiplier <= 1 keeps a constant spacing of Initial.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
}

// Exponential returns a doubling policy.
func Exponential(attempts int, initial, max time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Initial: initial, Multiplier: 2, Max: max}
}

// Constant returns a fixed-spacing policy.
func Constant(attempts int, every time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Initial: every, Multiplier: 1}
}

// Immediate retries without waiting.
func Immediate(attempts int) Policy {
	return Policy{MaxAttempts: attempts}
}

// Permanent wraps err so Do stops without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempt
// budget is spent, or ctx is done. op receives the 1-based attempt number.
// The last error is returned on failure.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, op(attempt)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.tries()),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

// Delay returns the wait before the given 1-based retry, for callers that
// schedule their own timers (e.g. redelivery on a ticker).
func (p Policy) Delay(retry int) time.Duration {
	b := p.backOff()
	var d time.Duration
	for i := 0; i < retry; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (p Policy) tries() uint {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return uint(p.MaxAttempts)
}

func (p Policy) backOff() backoff.BackOff {
	if p.Initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Initial)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.Reset()
	return b
}
