// Package retry provides bounded retries with exponential backoff and
// jitter for fallible operations
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

type (
	// Policy configures how many times an operation is attempted and how
	// long to wait between attempts
	Policy struct {
		MaxAttempts int           `json:"max_attempts"`
		BaseDelay   time.Duration `json:"base_delay"`
		MaxDelay    time.Duration `json:"max_delay"`
		Multiplier  float64       `json:"multiplier"`
		Jitter      bool          `json:"jitter"`
	}

	// Operation is a fallible unit of work. It receives the caller's context
	// and must honor its cancellation
	Operation[T any] func(context.Context) (T, error)

	// ShouldRetry classifies a failed attempt. Returning false stops retrying
	// even when attempts remain
	ShouldRetry func(err error, attempt int) bool

	// Outcome reports the result of a retried operation
	Outcome[T any] struct {
		Result        T
		Err           error
		Attempts      int
		TotalDuration time.Duration
		Success       bool
	}

	permanentError struct {
		err error
	}
)

// maxJitterRatio bounds the random jitter added on top of a backoff delay
const maxJitterRatio = 0.1

var (
	ErrCancelled       = errors.New("retry cancelled")
	ErrInvalidAttempts = errors.New("max attempts must be at least 1")
	ErrInvalidDelay    = errors.New("base delay cannot be negative")
	ErrMaxDelayTooLow  = errors.New("max delay must be >= base delay")
	ErrInvalidFactor   = errors.New("backoff multiplier must be >= 1")
)

// Execute invokes op until it succeeds, attempts run out, or ctx is done.
// The optional maxAttempts overrides the policy's MaxAttempts when it is a
// positive integer
func Execute[T any](
	ctx context.Context, p Policy, op Operation[T], maxAttempts ...int,
) *Outcome[T] {
	return ExecuteWithErrorHandling(ctx, p, op, nil, maxAttempts...)
}

// ExecuteWithErrorHandling behaves like Execute, but consults shouldRetry
// after every failed attempt that still has attempts remaining
func ExecuteWithErrorHandling[T any](
	ctx context.Context, p Policy, op Operation[T], shouldRetry ShouldRetry,
	maxAttempts ...int,
) *Outcome[T] {
	start := time.Now()
	limit := p.attemptLimit(maxAttempts)
	res := &Outcome[T]{}

	for attempt := 1; attempt <= limit; attempt++ {
		if ctx.Err() != nil {
			res.Err = cancelled(ctx, res.Err)
			break
		}

		res.Attempts = attempt
		val, err := op(ctx)
		if err == nil {
			res.Result = val
			res.Err = nil
			res.Success = true
			break
		}
		res.Err = err

		if ctx.Err() != nil {
			res.Err = cancelled(ctx, err)
			break
		}
		if attempt == limit {
			break
		}
		if IsPermanent(err) {
			break
		}
		if shouldRetry != nil && !shouldRetry(err, attempt) {
			break
		}
		if !sleep(ctx, p.Backoff(attempt)) {
			res.Err = cancelled(ctx, err)
			break
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// Do is a convenience for operations that produce no value
func Do(
	ctx context.Context, p Policy, op func(context.Context) error,
	shouldRetry ShouldRetry, maxAttempts ...int,
) *Outcome[struct{}] {
	return ExecuteWithErrorHandling(ctx, p,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, op(ctx)
		},
		shouldRetry, maxAttempts...,
	)
}

// Delay returns the un-jittered wait after the given failed attempt:
// min(BaseDelay × Multiplier^(attempt-1), MaxDelay)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Backoff returns Delay(attempt) plus, when Jitter is enabled, up to 10%
// of uniform random jitter
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.Delay(attempt)
	if !p.Jitter || delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Float64()*maxJitterRatio*float64(delay))
}

// WithMaxAttempts returns a copy of the policy with a different attempt limit
func (p Policy) WithMaxAttempts(n int) Policy {
	if n >= 1 {
		p.MaxAttempts = n
	}
	return p
}

// Validate checks that the policy can be executed
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidAttempts
	}
	if p.BaseDelay < 0 {
		return ErrInvalidDelay
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return ErrMaxDelayTooLow
	}
	if p.Multiplier < 1 {
		return ErrInvalidFactor
	}
	return nil
}

func (p Policy) attemptLimit(override []int) int {
	if len(override) > 0 && override[0] >= 1 {
		return override[0]
	}
	if p.MaxAttempts >= 1 {
		return p.MaxAttempts
	}
	return 1
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsRetryable is the default classifier: permanent errors and context
// cancellation are not retried, everything else is
func IsRetryable(err error, _ int) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// IsCancelled reports whether the outcome was cut short by cancellation
func (o *Outcome[T]) IsCancelled() bool {
	return errors.Is(o.Err, ErrCancelled)
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

func cancelled(ctx context.Context, last error) error {
	cause := context.Cause(ctx)
	if last == nil || errors.Is(last, cause) {
		return fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return fmt.Errorf("%w: %w (last error: %v)", ErrCancelled, cause, last)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
