// Package retry re-runs operations that fail with transient errors, waiting
// a policy-defined delay between attempts.
package retry

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"math/rand"
	"syscall"
	"time"
)

// Policy decides whether and when a failed attempt is retried
type Policy interface {
	// ShouldRetry reports whether attempt (1-based) may be followed by another
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the wait before the attempt after attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the attempt limit, first try included
	MaxAttempts() int
}

// Condition classifies an error as retryable
type Condition func(error) bool

// BaseRetryPolicy provides the attempt limit, the retry condition and jitter
type BaseRetryPolicy struct {
	maxAttempts  int
	condition    Condition
	jitter       bool
	jitterFactor float64
}

// PolicyOption configures a BaseRetryPolicy
type PolicyOption func(*BaseRetryPolicy)

// NewBaseRetryPolicy creates a base policy. maxAttempts below 1 is treated
// as 1, i.e. no retries.
func NewBaseRetryPolicy(maxAttempts int, opts ...PolicyOption) *BaseRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &BaseRetryPolicy{
		maxAttempts:  maxAttempts,
		condition:    Transient,
		jitterFactor: 0.1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldRetry implements Policy
func (p *BaseRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	return p.condition(err)
}

// MaxAttempts implements Policy
func (p *BaseRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *BaseRetryPolicy) applyJitter(delay time.Duration) time.Duration {
	if !p.jitter || delay <= 0 {
		return delay
	}
	spread := float64(delay) * p.jitterFactor
	result := delay + time.Duration((rand.Float64()-0.5)*2*spread)
	if result < 0 {
		return delay / 2
	}
	return result
}

// WithCondition replaces the default Transient condition
func WithCondition(condition Condition) PolicyOption {
	return func(p *BaseRetryPolicy) {
		if condition != nil {
			p.condition = condition
		}
	}
}

// WithJitter spreads delays by up to factor in either direction
func WithJitter(enabled bool, factor float64) PolicyOption {
	return func(p *BaseRetryPolicy) {
		p.jitter = enabled
		if factor > 0 && factor <= 1.0 {
			p.jitterFactor = factor
		}
	}
}

// FixedDelayRetry waits the same delay before every retry
type FixedDelayRetry struct {
	*BaseRetryPolicy
	delay time.Duration
}

// NewFixedDelayRetry creates a fixed delay policy
func NewFixedDelayRetry(maxAttempts int, delay time.Duration, opts ...PolicyOption) *FixedDelayRetry {
	return &FixedDelayRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts, opts...),
		delay:           delay,
	}
}

// NextDelay implements Policy
func (p *FixedDelayRetry) NextDelay(int) time.Duration {
	return p.applyJitter(p.delay)
}

// ExponentialBackoffRetry multiplies the delay after every failed attempt,
// capped at a maximum
type ExponentialBackoffRetry struct {
	*BaseRetryPolicy
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// BackoffOption configures an ExponentialBackoffRetry
type BackoffOption func(*ExponentialBackoffRetry)

// NewExponentialBackoffRetry creates an exponential backoff policy with a
// multiplier of 2 and a 30s cap
func NewExponentialBackoffRetry(maxAttempts int, initialDelay time.Duration, opts ...BackoffOption) *ExponentialBackoffRetry {
	p := &ExponentialBackoffRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts),
		initialDelay:    initialDelay,
		multiplier:      2.0,
		maxDelay:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextDelay implements Policy
func (p *ExponentialBackoffRetry) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	if delay > p.maxDelay || delay < 0 {
		delay = p.maxDelay
	}
	return p.applyJitter(delay)
}

// WithMultiplier sets the growth factor; values below 1 are ignored
func WithMultiplier(multiplier float64) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		if multiplier >= 1 {
			p.multiplier = multiplier
		}
	}
}

// WithMaxDelay caps the delay
func WithMaxDelay(maxDelay time.Duration) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		p.maxDelay = maxDelay
	}
}

// WithPolicyOptions applies base policy options to a backoff policy
func WithPolicyOptions(opts ...PolicyOption) BackoffOption {
	return func(p *ExponentialBackoffRetry) {
		for _, opt := range opts {
			opt(p.BaseRetryPolicy)
		}
	}
}

// RetryableError marks an error as worth another attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so that Transient accepts it
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Transient is the default condition. Cancellation and missing, existing or
// forbidden paths are final; interrupted, busy and timed out I/O is retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var marked *RetryableError
	if errors.As(err, &marked) {
		return true
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrExist) {
		return false
	}
	if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY) {
		return true
	}

	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
