// Package retry provides a bounded retry policy with exponential backoff.
//
// A Policy is a value object: build it once from configuration and share it. Errors
// the caller marks as permanent (see Permanent) are returned immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	// Retryable decides whether a failed attempt may be retried. Nil retries everything.
	Retryable func(error) bool
}

// Option configures a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

func WithInitialInterval(d time.Duration) Option {
	return func(p *Policy) { p.InitialInterval = d }
}

func WithMaxInterval(d time.Duration) Option {
	return func(p *Policy) { p.MaxInterval = d }
}

func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.Multiplier = m }
}

// WithRetryable sets the predicate for retryable errors.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.Retryable = fn }
}

// New returns a policy with three attempts starting at 200ms and doubling.
func New(opts ...Option) Policy {
	p := Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Schedule returns the waits between attempts, without jitter. Useful for logging
// and tests.
func (p Policy) Schedule() []time.Duration {
	waits := make([]time.Duration, 0, p.MaxAttempts-1)
	next := p.InitialInterval
	for i := 1; i < p.MaxAttempts; i++ {
		waits = append(waits, next)
		next = time.Duration(float64(next) * p.Multiplier)
		if p.MaxInterval > 0 && next > p.MaxInterval {
			next = p.MaxInterval
		}
	}
	return waits
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts run
// out, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Permanent marks err as not retryable regardless of the policy's predicate.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
