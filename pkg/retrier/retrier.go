// Package retrier implements bounded exponential backoff with jitter for
// transient external-call failures.
package retrier

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 15 * time.Second
	defaultFactor    = 2.0
	defaultAttempts  = 4
	defaultJitter    = 0.2
)

// Retrier re-runs failing calls with exponentially growing pauses.
type Retrier struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	factor    float64
	attempts  int
	jitter    float64
}

// Option configures the Retrier.
type Option func(*Retrier)

// WithBaseDelay sets the pause before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.baseDelay = d
	}
}

// WithMaxDelay caps the pause between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxDelay = d
	}
}

// WithFactor sets the backoff growth factor.
func WithFactor(f float64) Option {
	return func(r *Retrier) {
		r.factor = f
	}
}

// WithAttempts sets the total number of attempts including the first call.
func WithAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithJitter sets the relative jitter applied to every pause, 0..1.
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// New creates a Retrier with defaults overridden by opts.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		factor:    defaultFactor,
		attempts:  defaultAttempts,
		jitter:    defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks err as non-retryable: Do stops immediately and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pause(attempt - 1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}

	return errors.Wrapf(lastErr, "gave up after %d attempts", r.attempts)
}

// DoWithData runs fn with the same rules as Do and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}

// pause returns the backoff before retry number n (1-based).
func (r *Retrier) pause(n int) time.Duration {
	delay := float64(r.baseDelay)
	for i := 1; i < n; i++ {
		delay *= r.factor
		if delay >= float64(r.maxDelay) {
			delay = float64(r.maxDelay)
			break
		}
	}

	spread := (rand.Float64()*2 - 1) * r.jitter * delay
	out := time.Duration(delay + spread)
	if out < 0 {
		out = 0
	}
	return out
}
